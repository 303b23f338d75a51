package server

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/smartcontractkit/contract-admin/roles"
)

// Validator checks request structs and reports failures per field.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the role name check registered.
func NewValidator() *Validator {
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
	v.registerCustomValidations()

	return v
}

// ValidateStructured returns a map of field to error message, nil when i is valid.
func (v *Validator) ValidateStructured(i any) map[string]string {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["_global"] = err.Error()

		return errs
	}

	for _, e := range validationErrors {
		msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
		switch e.Tag() {
		case "required":
			msg = "This field is required"
		case "eth_addr":
			msg = "Must be a 0x-prefixed 20-byte hex address"
		case "role_name":
			msg = "Must be a non-empty role name"
		}
		errs[e.Field()] = msg
	}

	return errs
}

func (v *Validator) registerCustomValidations() {
	_ = v.validate.RegisterValidation("role_name", func(fl validator.FieldLevel) bool {
		_, err := roles.ComputeRoleHash(fl.Field().String())
		return err == nil
	})
}
