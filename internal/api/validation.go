package api

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/mautops/timesheet-gin/internal/utils"
)

var registerOnce sync.Once

// RegisterValidations 向 gin 的校验引擎注册自定义 tag
//   - entity_id: 工时表、项目、用户标识符,规则同 utils.ValidateID
func RegisterValidations() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("unexpected binding validator engine")
			return
		}
		err = v.RegisterValidation("entity_id", validateEntityID)
	})
	return err
}

func validateEntityID(fl validator.FieldLevel) bool {
	return utils.ValidateID(fl.Field().String()) == nil
}
