// Package validator wraps go-playground/validator the way the teacher's
// pkg/validator does, extended with the severity/channel/rotation-type
// enum tags this system's request bodies rely on instead of hand-rolled
// switch statements in handlers.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomTags(validate)

	// gin's ShouldBindJSON validates struct tags through its own
	// binding.Validator engine, a separate *validator.Validate instance.
	// The custom tags must be registered there too or every binding:"severity"
	// (etc.) field fails bind with "undefined validation function".
	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerCustomTags(engine)
	}
}

func registerCustomTags(v *validator.Validate) {
	_ = v.RegisterValidation("severity", isSeverity)
	_ = v.RegisterValidation("channel", isChannel)
	_ = v.RegisterValidation("rotationtype", isRotationType)
	_ = v.RegisterValidation("role", isRole)
}

func Struct(data interface{}) error {
	return validate.Struct(data)
}

func Var(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

func isSeverity(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "critical", "high", "medium", "low":
		return true
	}
	return false
}

func isChannel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "mock", "email", "slack", "webhook":
		return true
	}
	return false
}

func isRotationType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "daily", "weekly", "biweekly":
		return true
	}
	return false
}

func isRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "primary", "secondary":
		return true
	}
	return false
}
