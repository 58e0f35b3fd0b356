package validator

import (
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/lab-api/internal/model"
)

// testCodePattern: short uppercase lab codes like CBC, BMP, HBA1C.
var testCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,15}$`)

// ValidTestCode reports whether s is a well-formed test code. The same
// rule backs the `testcode` binding tag.
func ValidTestCode(s string) bool {
	return testCodePattern.MatchString(s)
}

// Register adds the lab-domain rules to a validator instance.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("labpriority", validPriority); err != nil {
		return fmt.Errorf("failed to register labpriority: %w", err)
	}
	if err := v.RegisterValidation("labstatus", validStatus); err != nil {
		return fmt.Errorf("failed to register labstatus: %w", err)
	}
	if err := v.RegisterValidation("testcode", validTestCode); err != nil {
		return fmt.Errorf("failed to register testcode: %w", err)
	}
	return nil
}

// RegisterBinding installs the lab rules on gin's binding validator so
// `binding:"labstatus"` tags work on request DTOs.
func RegisterBinding() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin binding engine %T", binding.Validator.Engine())
	}
	return Register(v)
}

func validPriority(fl validator.FieldLevel) bool {
	return model.OrderPriority(fl.Field().String()).Valid()
}

func validStatus(fl validator.FieldLevel) bool {
	return model.OrderStatus(fl.Field().String()).Valid()
}

func validTestCode(fl validator.FieldLevel) bool {
	return testCodePattern.MatchString(fl.Field().String())
}
