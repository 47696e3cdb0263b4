package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/go-playground/validator/v10"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// RegisterRequest is the input of AuthService.Register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,pwbytes"`
}

// LoginRequest is the input of AuthService.Login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// RefreshRequest carries a refresh token for Refresh and Logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,min=20"`
}

// VerifyEmailRequest is the input of AuthService.VerifyEmail.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required,min=20"`
}

// ResetRequestRequest is the input of AuthService.RequestPasswordReset.
type ResetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the input of AuthService.ResetPassword.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,min=20"`
	Password string `json:"password" validate:"required,min=6,pwbytes"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// validateRequest checks req against its tags and describes the first
// offending fields in a VALIDATION_ERROR.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describe(fe))
	}
	return apperr.Validation("invalid input data: " + strings.Join(parts, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "pwbytes":
		return fmt.Sprintf("%s must be at most %d bytes", fe.Field(), maxPasswordBytes)
	default:
		return fe.Field() + " is invalid"
	}
}

// normalizeEmail lower-cases and trims an address before storage or lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
