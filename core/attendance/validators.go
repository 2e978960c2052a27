package attendance

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

var (
	sessionTypeTag  = "sessiontype"
	sessionTypeText = "invalid session type"

	markingMethodTag  = "markingmethod"
	markingMethodText = "invalid marking method"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(sessionTypeTag, sessionTypeValidation)
	core.RegisterCustomTranslation(sessionTypeTag, sessionTypeText)

	_ = core.Validate.RegisterValidation(markingMethodTag, markingMethodValidation)
	core.RegisterCustomTranslation(markingMethodTag, markingMethodText)
}

// Custom Validators

// sessionTypeValidation checks that the provided session type is in SessionTypes
func sessionTypeValidation(fl validator.FieldLevel) bool {
	return contains(SessionTypes, fl.Field().String())
}

// markingMethodValidation checks that the provided marking method is in MarkingMethods
func markingMethodValidation(fl validator.FieldLevel) bool {
	return contains(MarkingMethods, fl.Field().String())
}

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}
	return false
}
