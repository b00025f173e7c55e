package ledger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; building a validator caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type registerInput struct {
	Name             string `json:"name" validate:"required"`
	AllowedEmissions int64  `json:"allowed_emissions" validate:"gte=0"`
}

type emissionsInput struct {
	Name            string `json:"name" validate:"required"`
	ActualEmissions int64  `json:"actual_emissions" validate:"gte=0"`
}

type transferInput struct {
	Seller string `json:"seller" validate:"required"`
	Buyer  string `json:"buyer" validate:"required,nefield=Seller"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

// checkInput runs struct validation and reports the first violation as
// an InvalidArgument error.
func checkInput(op string, in any, names ...string) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidArgument(op, err.Error(), names...)
	}
	return invalidArgument(op, describe(fieldErrs[0]), names...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be > %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "nefield":
		return "seller and buyer must be different entities"
	default:
		return fmt.Sprintf("%s failed %q check", fe.Field(), fe.Tag())
	}
}
