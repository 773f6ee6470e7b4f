package security

import (
	"strings"

	"github.com/proyectoio2/back/internal/core/port"
)

const defaultMinPasswordLength = 8

// PasswordPolicyConfig tunes the password policy.
type PasswordPolicyConfig struct {
	MinLength int
	// MinStrengthScore enables the zxcvbn rule when greater than zero.
	MinStrengthScore int
}

// PasswordPolicy builds a validator per call so contextual user inputs
// (email, full name) feed the strength estimator.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy returns a policy for cfg, defaulting the minimum length to 8.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinPasswordLength
	}
	return &PasswordPolicy{cfg: cfg}
}

// Validator returns the ordered rule set for the given user inputs.
func (p *PasswordPolicy) Validator(inputs ...string) *PasswordValidator {
	rules := []PasswordRule{
		MinLengthRule(p.cfg.MinLength),
		MaxLengthRule(MaxPasswordLength),
		RequireUppercaseRule(),
		RequireLowercaseRule(),
		RequireDigitRule(),
		RequireSpecialRule(),
	}
	if p.cfg.MinStrengthScore > 0 {
		rules = append(rules, RequirePasswordStrengthRule(p.cfg.MinStrengthScore, cleanInputs(inputs)...))
	}
	return NewPasswordValidator(rules...)
}

// Validate returns the first violated rule as a *PasswordValidationError.
func (p *PasswordPolicy) Validate(password string, inputs ...string) error {
	return p.Validator(inputs...).Validate(password)
}

func cleanInputs(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if trimmed := strings.TrimSpace(in); trimmed != "" {
			out = append(out, strings.ToLower(trimmed))
		}
	}
	return out
}

var _ port.PasswordPolicy = (*PasswordPolicy)(nil)
