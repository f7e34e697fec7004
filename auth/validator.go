package auth

import (
	goerrors "errors"
	"fmt"
	"unicode"

	"babble/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type RegisterRequest struct {
	Name     string `validate:"required,min=1,max=64"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=12,max=72"`
}

// ValidateRegister tags each failure with the matching sentinel: password
// rules map to ErrInvalidPassword, everything else (name, email) to
// ErrInvalidRegistration.
func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if goerrors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				if fieldErr.Field() == "Password" {
					return fmt.Errorf("%w: %s", errors.ErrInvalidPassword, fieldErr.Error())
				}
			}
			return fmt.Errorf("%w: %s", errors.ErrInvalidRegistration, fieldErrs.Error())
		}
		return err
	}

	if !isPasswordComplex(req.Password) {
		return fmt.Errorf("%w: needs upper, lower, digit and special characters", errors.ErrInvalidPassword)
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
