package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateStore, StoreConfig{})
	return v
}

// validateStore checks that the driver has the location it needs.
func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(StoreConfig)
	switch s.Driver {
	case DriverSQLite3, DriverSQLite:
		if s.Path == "" {
			sl.ReportError(s.Path, "path", "Path", "required_for_driver", s.Driver)
		}
	case DriverPostgres:
		if s.DSN == "" {
			sl.ReportError(s.DSN, "dsn", "DSN", "required_for_driver", s.Driver)
		}
	}
}

// Validate reports every invalid field, one per line.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "\n"))
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.store.driver"; drop the root type.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required_for_driver":
		return fmt.Sprintf("%s is required for driver %q", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be positive", field)
	case "gtefield":
		return fmt.Sprintf("%s must not be shorter than initial_interval", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
