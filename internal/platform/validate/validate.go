package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Report JSON/query names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	v.RegisterValidation("fhir_id", validateFHIRID)
	v.RegisterValidation("score_policy", validateScorePolicy)

	return &Validator{validate: v}
}

// Validate returns a 400 echo.HTTPError naming the first failing field.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  fmt.Sprintf("%s: failed %q validation", fe.Field(), fe.Tag()),
			Internal: err,
		}
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func validateFHIRID(fl validator.FieldLevel) bool {
	return risk.ValidID(fl.Field().String())
}

func validateScorePolicy(fl validator.FieldLevel) bool {
	_, err := risk.PolicyByName(fl.Field().String())
	return err == nil
}
