package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/ryckox/syntagma/internal/model"
)

// RegisterValidators 注册自定义校验规则，字段名使用 json/form 名
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	return v.RegisterValidation("ruleset_status", func(fl validator.FieldLevel) bool {
		return model.RulesetStatus(fl.Field().String()).IsValid()
	})
}
