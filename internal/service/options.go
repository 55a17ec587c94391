package service

import "sync/atomic"

// ApprovalOptions 审批与查询的可调参数
type ApprovalOptions struct {
	MinRejectionReasonLength int
	DefaultPageSize          int
	MaxPageSize              int
}

// DefaultApprovalOptions 默认参数
func DefaultApprovalOptions() ApprovalOptions {
	return ApprovalOptions{
		MinRejectionReasonLength: 10,
		DefaultPageSize:          20,
		MaxPageSize:              100,
	}
}

// Tunables 支持配置热更新的参数容器
type Tunables struct {
	current atomic.Pointer[ApprovalOptions]
}

// NewTunables 创建参数容器
func NewTunables(opts ApprovalOptions) *Tunables {
	t := &Tunables{}
	t.Set(opts)
	return t
}

// Get 返回当前参数
func (t *Tunables) Get() ApprovalOptions {
	if t == nil {
		return DefaultApprovalOptions()
	}
	if opts := t.current.Load(); opts != nil {
		return *opts
	}
	return DefaultApprovalOptions()
}

// Set 替换参数,非法值回退为默认值
func (t *Tunables) Set(opts ApprovalOptions) {
	defaults := DefaultApprovalOptions()
	if opts.MinRejectionReasonLength < 0 {
		opts.MinRejectionReasonLength = defaults.MinRejectionReasonLength
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = defaults.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = defaults.MaxPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	t.current.Store(&opts)
}
