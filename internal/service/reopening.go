package service

import (
	"sort"
	"time"

	"github.com/mautops/timesheet-gin/internal/model"
)

// ReopeningInput 参与重开检测的单条记录
type ReopeningInput struct {
	UserID     string
	CreatedAt  time.Time
	Status     model.TrackStatus
	ApprovedAt *time.Time
}

// Reopening 重开检测结果,仅用于展示
type Reopening struct {
	IsReopened            bool
	ReopenedAt            time.Time
	ReopenedBy            string
	OriginalApprovalCount int
}

// DetectReopening 按记录创建时间找出最近一次整体通过的前缀,
// 之后创建且仍为 pending 的记录视为重开
func DetectReopening(records []ReopeningInput) Reopening {
	ordered := make([]ReopeningInput, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	prefix, approved := 0, false
	var approvedAt time.Time
	for _, r := range ordered {
		if !r.Status.Cleared() {
			break
		}
		prefix++
		if r.Status == model.TrackApproved {
			approved = true
			at := r.CreatedAt
			if r.ApprovedAt != nil {
				at = *r.ApprovedAt
			}
			if at.After(approvedAt) {
				approvedAt = at
			}
		}
	}
	if prefix == 0 || !approved {
		return Reopening{}
	}

	for _, r := range ordered[prefix:] {
		if r.Status == model.TrackPending && r.CreatedAt.After(approvedAt) {
			return Reopening{
				IsReopened:            true,
				ReopenedAt:            r.CreatedAt,
				ReopenedBy:            r.UserID,
				OriginalApprovalCount: prefix,
			}
		}
	}
	return Reopening{}
}
