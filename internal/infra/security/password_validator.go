package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// SpecialCharacters lists the symbols accepted by RequireSpecialRule.
const SpecialCharacters = `!@#$%^&*(),.?":{}|<>`

// MaxPasswordLength caps the input fed to the hasher.
const MaxPasswordLength = 128

// PasswordValidationError is a single password rule violation. Code is stable
// and meant for clients; Message is shown to the user.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule checks one property of a password.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to PasswordRule.
type PasswordRuleFunc func(password string) error

func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator runs rules in order and stops at the first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	return &PasswordValidator{rules: append([]PasswordRule(nil), rules...)}
}

func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

func violation(code, format string, args ...any) *PasswordValidationError {
	return &PasswordValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// MinLengthRule counts characters, not bytes.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if utf8.RuneCountInString(password) < min {
			return violation("min_length", "password must be at least %d characters long", min)
		}
		return nil
	})
}

// MaxLengthRule rejects passwords longer than max characters.
func MaxLengthRule(max int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if utf8.RuneCountInString(password) > max {
			return violation("max_length", "password must be at most %d characters long", max)
		}
		return nil
	})
}

// characterClass is a set of runes a password must draw at least one character from.
type characterClass struct {
	code  string
	name  string
	match func(r rune) bool
}

var (
	uppercaseClass = characterClass{"uppercase", "uppercase letter", func(r rune) bool { return 'A' <= r && r <= 'Z' }}
	lowercaseClass = characterClass{"lowercase", "lowercase letter", func(r rune) bool { return 'a' <= r && r <= 'z' }}
	digitClass     = characterClass{"digit", "digit", unicode.IsDigit}
	specialClass   = characterClass{"special", "special character", func(r rune) bool { return strings.ContainsRune(SpecialCharacters, r) }}
)

func (cc characterClass) rule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if strings.IndexFunc(password, cc.match) < 0 {
			return violation(cc.code, "password must include at least one %s", cc.name)
		}
		return nil
	})
}

// RequireUppercaseRule requires an ASCII uppercase letter.
func RequireUppercaseRule() PasswordRule { return uppercaseClass.rule() }

// RequireLowercaseRule requires an ASCII lowercase letter.
func RequireLowercaseRule() PasswordRule { return lowercaseClass.rule() }

func RequireDigitRule() PasswordRule { return digitClass.rule() }

// RequireSpecialRule requires one of SpecialCharacters.
func RequireSpecialRule() PasswordRule { return specialClass.rule() }

// RequirePasswordStrengthRule rejects passwords whose zxcvbn score, computed
// against the user's own details, is below minScore. A score of 0 disables it.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	minScore = min(minScore, 4)
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score >= minScore {
			return nil
		}
		return violation("weak_password", "password is too weak, choose a less predictable one")
	})
}
