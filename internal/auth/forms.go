package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type signInForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signUpForm struct {
	FullName string `validate:"required,min=2"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

// pageData backs pages/auth.html.
type pageData struct {
	Tab    string
	SignIn signInForm
	SignUp signUpForm
	Errors map[string]string
}

const (
	tabSignIn = "signin"
	tabSignUp = "signup"
)

// fieldErrors maps validator failures to the message shown under each field.
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["general"] = err.Error()
		}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please enter a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

func fieldLabel(field string) string {
	switch field {
	case "FullName":
		return "Full name"
	default:
		return strings.ToUpper(field[:1]) + field[1:]
	}
}
