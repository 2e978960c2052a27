package school

import (
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

var (
	schoolYearTag   = "schoolyear"
	schoolYearText  = "school year must be of the form 2025-2026"
	schoolYearRegex = regexp.MustCompile(`^(\d{4})-(\d{4})$`)
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(schoolYearTag, schoolYearValidation)
	core.RegisterCustomTranslation(schoolYearTag, schoolYearText)
}

// Custom Validators

// schoolYearValidation checks a "YYYY-YYYY" school year with consecutive years.
func schoolYearValidation(fl validator.FieldLevel) bool {
	m := schoolYearRegex.FindStringSubmatch(fl.Field().String())
	if m == nil {
		return false
	}
	from, _ := strconv.Atoi(m[1])
	to, _ := strconv.Atoi(m[2])
	return to == from+1
}
