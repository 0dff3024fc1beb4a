package config

import "strings"

type ServiceConfig struct {
	Name                string
	Environment         string
	Version             string
	ClientURL           string
	StripeSecretKey     string
	StripeWebhookSecret string
	// JWTSecret verifies identity provider bearer tokens (HS256).
	JWTSecret    string
	AdminEmails  []string
	ProductsPath string
	// WebhookMaxBodyBytes caps the webhook body read.
	WebhookMaxBodyBytes int64
	Replay              ReplayConfig
}

func (c ServiceConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsAdminEmail reports whether email is listed in admin_emails, ignoring case.
func (c ServiceConfig) IsAdminEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return true
		}
	}
	return false
}
