package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/proyectoio2/back/internal/core/port"
)

const (
	fullNameMinLength = 3
	fullNameMaxLength = 100
	phoneMinLength    = 7
	phoneMaxLength    = 20
	addressMinLength  = 5
	addressMaxLength  = 255
)

func validateEmail(email string) error {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" || domainPart == "" || strings.Contains(domainPart, "@") {
		return newValidationError("email", "email must contain a single @ with a name and a domain")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return newValidationError("email", "email must not contain spaces")
	}
	return nil
}

func validateLength(field, label, value string, minLen, maxLen int) error {
	if n := utf8.RuneCountInString(value); n < minLen || n > maxLen {
		return newValidationError(field, fmt.Sprintf("%s must be between %d and %d characters", label, minLen, maxLen))
	}
	return nil
}

func validateFullName(name string) error {
	return validateLength("full_name", "full name", name, fullNameMinLength, fullNameMaxLength)
}

func validatePhone(phone string) error {
	return validateLength("phone_number", "phone number", phone, phoneMinLength, phoneMaxLength)
}

func validateAddress(address string) error {
	return validateLength("address", "address", address, addressMinLength, addressMaxLength)
}

// checkPasswordPolicy runs policy and keeps the rule failure as the cause.
func checkPasswordPolicy(policy port.PasswordPolicy, password string, inputs ...string) error {
	if policy == nil {
		return nil
	}
	if err := policy.Validate(password, inputs...); err != nil {
		return &ValidationError{Field: "password", Message: err.Error(), Cause: err}
	}
	return nil
}
