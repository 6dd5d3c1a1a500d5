package validator

import (
	"reflect"
	"strings"
	"unicode"

	apperrors "github.com/SAP-F-2025/quiro-companion/internal/errors"
	"github.com/go-playground/validator/v10"
)

const maxCardIDLength = 64

// Validator wraps the struct validator with the project's custom rules
type Validator struct {
	structValidator *validator.Validate
}

// New creates a validator with all custom validators registered
func New() *Validator {
	structValidator := validator.New()
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator: structValidator,
	}
}

// ValidateStruct validates struct tags and converts failures to ValidationErrors
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if errs := ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// ValidateCardID checks a single scanned or typed identifier
func (v *Validator) ValidateCardID(id string) error {
	if err := v.structValidator.Var(id, "card_id"); err != nil {
		var errs ValidationErrors
		for _, fe := range ToValidationErrors(err) {
			errs = append(errs, *apperrors.NewValidationErrorWithRule("id", fe.Message, fe.Rule, id))
		}
		if len(errs) == 0 {
			return err
		}
		return errs
	}
	return nil
}

func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("card_id", validateCardID)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// validateCardID accepts what fits on a printed card: non-blank, bounded and
// without control characters.
func validateCardID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if strings.TrimSpace(value) == "" || len(value) > maxCardIDLength {
		return false
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
