package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/javelin-guard/gateway/internal/domain/rules"
)

// Validate validates the GatewayConfig using struct tags and cross-field
// rules, and pre-compiles the CEL rule table so a bad expression is caught
// at load time instead of on the first validated message.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRuleExpressions(); err != nil {
		return err
	}

	return nil
}

// validateRuleExpressions compiles every configured CEL rule so a typo in
// an operator's rule file is caught before the gateway starts serving
// traffic.
func (c *GatewayConfig) validateRuleExpressions() error {
	if len(c.Rules) == 0 {
		return nil
	}

	celRules := make([]rules.CELRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		celRules = append(celRules, rules.CELRule{
			Name:       r.Name,
			Expression: r.Expression,
			Confidence: r.Confidence,
			Reason:     r.Reason,
		})
	}

	if _, err := rules.NewExtension(celRules); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_unless":
		return fmt.Sprintf("%s is required unless javelin.api_key is \"test-mode\"", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
