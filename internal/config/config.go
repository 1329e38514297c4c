package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the relay. Everything is read from the
// environment once at startup; the upstream URLs are derived from the tenant
// ID and never configured directly unless an override is set (tests rely on
// the overrides to point at local fakes).
type Config struct {
	// ClientID is the pre-registered public client identifier. It may be
	// empty at startup: /login and the token exchange report the missing
	// configuration to the operator instead of refusing to boot.
	ClientID    string `env:"ORACLE_CLIENT_ID"`
	TenantID    string `env:"TENANT_ID" envDefault:"ec2458f2-1e24-41c8-b71b-0e701af7583d" validate:"required"`
	RedirectURI string `env:"REDIRECT_URI" envDefault:"http://localhost:8080/callback" validate:"required,url"`

	// Scopes requested during authorization. Space-separated, standalone
	// launch (no "launch" scope).
	Scopes string `env:"OAUTH_SCOPES" envDefault:"patient/Patient.read patient/Observation.read patient/MedicationHistory.read openid profile" validate:"required"`

	HTTPPort    int `env:"HTTP_PORT" envDefault:"8080" validate:"gte=0"`
	MetricsPort int `env:"METRICS_PORT" envDefault:"9091" validate:"gte=0"`

	// UpstreamTimeout bounds every outbound call to the authorization,
	// token and FHIR servers.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s" validate:"min=1s"`

	// StateTTL bounds how long an abandoned login may hold a pending
	// flow-state entry before it is swept.
	StateTTL time.Duration `env:"STATE_TTL" envDefault:"10m" validate:"min=1s"`

	// Optional base URL overrides. When empty the Cerner URLs are derived
	// from the tenant ID.
	AuthBaseOverride    string `env:"AUTH_BASE_URL"`
	FHIRBaseOverride    string `env:"FHIR_BASE_URL"`
	SandboxBaseOverride string `env:"SANDBOX_BASE_URL"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// AuthorizeURL returns the SMART standalone authorization endpoint.
func (c *Config) AuthorizeURL() string {
	if c.AuthBaseOverride != "" {
		return c.AuthBaseOverride + "/authorize"
	}
	return fmt.Sprintf("https://authorization.cerner.com/tenants/%s/protocols/oauth2/profiles/smart-v1/personas/provider/authorize", c.TenantID)
}

// TokenURL returns the token endpoint.
func (c *Config) TokenURL() string {
	if c.AuthBaseOverride != "" {
		return c.AuthBaseOverride + "/token"
	}
	return fmt.Sprintf("https://authorization.cerner.com/tenants/%s/protocols/oauth2/profiles/smart-v1/token", c.TenantID)
}

// FHIRBaseURL returns the authenticated FHIR R4 resource server base URL.
// It doubles as the aud parameter of the authorize URL.
func (c *Config) FHIRBaseURL() string {
	if c.FHIRBaseOverride != "" {
		return c.FHIRBaseOverride
	}
	return fmt.Sprintf("https://fhir-ehr-code.cerner.com/r4/%s", c.TenantID)
}

// SandboxBaseURL returns the open (unauthenticated) sandbox base URL.
func (c *Config) SandboxBaseURL() string {
	if c.SandboxBaseOverride != "" {
		return c.SandboxBaseOverride
	}
	return fmt.Sprintf("https://fhir-open.cerner.com/r4/%s", c.TenantID)
}
