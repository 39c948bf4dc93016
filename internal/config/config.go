package config

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/securepool/pincheck/internal/pin"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 443
	DefaultTimeout = 5 * time.Second
	DefaultPinsEnv = "PINCHECK_PINS"

	// DefaultPin is the leaf certificate pin of the development backend.
	DefaultPin = "bWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg+uO0mQ8g="
)

// Check types.
const (
	TypePin       = "pin"
	TypeHTTP      = "http"
	TypeWebSocket = "websocket"
)

// Config is the top-level pincheck configuration.
type Config struct {
	Target TargetConfig `yaml:"target"`
	Pins   PinsConfig   `yaml:"pins"`
	Checks []Check      `yaml:"checks"`
	Output OutputConfig `yaml:"output"`
	Notify NotifyConfig `yaml:"notify"`
	Log    LogConfig    `yaml:"log"`
}

// TargetConfig identifies the backend under test.
type TargetConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ServerName overrides the TLS SNI name. Defaults to Host.
	ServerName string `yaml:"server_name"`

	// Timeout bounds every network operation of a single check.
	Timeout time.Duration `yaml:"timeout"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig selects the trust model used for every connection to the target.
type TLSConfig struct {
	// VerifyChain adds CA chain and hostname validation on top of pinning.
	VerifyChain bool `yaml:"verify_chain"`

	// CAFile is a PEM bundle used as the root pool when VerifyChain is set.
	// Empty means the system pool.
	CAFile string `yaml:"ca_file"`

	// EnforcePin makes HTTP and WebSocket checks reject connections whose
	// leaf pin is not expected, the way the mobile client does.
	EnforcePin bool `yaml:"enforce_pin"`
}

// PinsConfig lists the acceptable certificate pins.
type PinsConfig struct {
	// Kind is cert (hash of the certificate DER) or spki (hash of the
	// public key info). Defaults to cert.
	Kind string `yaml:"kind"`

	// Expected holds base-64 SHA-256 pins, optionally prefixed "sha256/".
	// Listing more than one allows a backup pin during rotation.
	Expected []string `yaml:"expected"`

	// Env names an environment variable holding comma-separated pins.
	// When set and non-empty it replaces Expected.
	Env string `yaml:"env"`
}

// Resolve returns the configured pins, preferring the environment.
func (p PinsConfig) Resolve() []string {
	if p.Env != "" {
		if v := strings.TrimSpace(os.Getenv(p.Env)); v != "" {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return p.Expected
}

// Check describes one named check.
type Check struct {
	// Name is unique within the config and used in output and metrics.
	Name string `yaml:"name"`

	// Type is one of: pin | http | websocket.
	Type string `yaml:"type"`

	// Method is the HTTP method for http checks. Defaults to GET.
	Method string `yaml:"method"`

	// Path is the request path, e.g. /api/login.
	Path string `yaml:"path"`

	// Body is sent JSON-encoded when present.
	Body map[string]any `yaml:"body"`

	// Headers are added to the request verbatim.
	Headers map[string]string `yaml:"headers"`

	// ExpectStatus lists acceptable response codes. Empty accepts any
	// response: reaching the server is enough.
	ExpectStatus []int `yaml:"expect_status"`

	// Optional checks are reported but never fail the run.
	Optional bool `yaml:"optional"`

	// Requires names earlier checks that must pass before this one runs.
	Requires []string `yaml:"requires"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies how a check authenticates its request.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// API key fields, used when Mode == "apikey".
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`

	// Bearer token, used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// OutputConfig controls where results are written besides the console.
type OutputConfig struct {
	// MetricsFile receives a Prometheus text exposition after every run,
	// suitable for node_exporter's textfile collector.
	MetricsFile string `yaml:"metrics_file"`
}

// NotifyConfig configures webhook delivery of run summaries.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// OnSuccess also notifies when every check passed.
	OnSuccess bool `yaml:"on_success"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults; an absent checks list
// gets DefaultChecks. Pins have no file default and must be configured.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if len(cfg.Checks) == 0 {
		cfg.Checks = DefaultChecks()
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given: the
// development backend on localhost:443 with its recorded pin.
func Default() *Config {
	cfg := defaults()
	cfg.Pins.Expected = []string{DefaultPin}
	cfg.Checks = DefaultChecks()
	return cfg
}

// DefaultChecks reproduces the reachability and pin checks run against the
// development backend.
func DefaultChecks() []Check {
	return []Check{
		{Name: "backend", Type: TypeHTTP, Method: http.MethodGet, Path: "/"},
		{Name: "pin", Type: TypePin},
		{
			Name:   "login",
			Type:   TypeHTTP,
			Method: http.MethodPost,
			Path:   "/api/login",
			Body:   map[string]any{"username": "testuser", "password": "testpass"},
		},
		{
			Name:         "socketio",
			Type:         TypeHTTP,
			Method:       http.MethodGet,
			Path:         "/socket.io/",
			ExpectStatus: []int{http.StatusOK, http.StatusBadRequest, http.StatusNotFound},
			Optional:     true,
		},
	}
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Target: TargetConfig{
			Host:    DefaultHost,
			Port:    DefaultPort,
			Timeout: DefaultTimeout,
		},
		Pins: PinsConfig{
			Kind: string(pin.KindCertificate),
			Env:  DefaultPinsEnv,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// PinKind returns the configured pin kind.
func (c *Config) PinKind() (pin.Kind, error) {
	return pin.ParseKind(c.Pins.Kind)
}

// PinSet returns the resolved, normalized set of expected pins.
func (c *Config) PinSet() (pin.Set, error) {
	return pin.NewSet(c.Pins.Resolve()...)
}

// PinTarget converts the target section to a pin.Target, loading the CA
// bundle when chain verification is enabled.
func (c *Config) PinTarget() (pin.Target, error) {
	t := pin.Target{
		Host:        c.Target.Host,
		Port:        c.Target.Port,
		ServerName:  c.Target.ServerName,
		Timeout:     c.Target.Timeout,
		VerifyChain: c.Target.TLS.VerifyChain,
	}
	if t.VerifyChain && c.Target.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(c.Target.TLS.CAFile)
		if err != nil {
			return pin.Target{}, fmt.Errorf("config: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return pin.Target{}, fmt.Errorf("config: no valid certs found in ca file %q", c.Target.TLS.CAFile)
		}
		t.RootCAs = pool
	}
	return t, nil
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if cfg.Target.Port <= 0 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port %d out of range", cfg.Target.Port)
	}
	if cfg.Target.Timeout <= 0 {
		return fmt.Errorf("target.timeout must be positive")
	}
	if _, err := cfg.PinKind(); err != nil {
		return fmt.Errorf("pins.kind: %w", err)
	}
	if _, err := cfg.PinSet(); err != nil {
		return fmt.Errorf("pins: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Checks))
	for i, c := range cfg.Checks {
		if c.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("checks[%d]: duplicate name %q", i, c.Name)
		}
		for _, req := range c.Requires {
			if !seen[req] {
				return fmt.Errorf("checks[%d] %q: requires %q which is not an earlier check", i, c.Name, req)
			}
		}
		seen[c.Name] = true

		switch c.Type {
		case TypePin:
		case TypeHTTP, TypeWebSocket:
			if !strings.HasPrefix(c.Path, "/") {
				return fmt.Errorf("checks[%d] %q: path must start with /", i, c.Name)
			}
		default:
			return fmt.Errorf("checks[%d] %q: unknown type %q", i, c.Name, c.Type)
		}
		switch strings.ToUpper(c.Method) {
		case "", http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions:
		default:
			return fmt.Errorf("checks[%d] %q: unsupported method %q", i, c.Name, c.Method)
		}
		for _, code := range c.ExpectStatus {
			if code < 100 || code > 599 {
				return fmt.Errorf("checks[%d] %q: expect_status %d out of range", i, c.Name, code)
			}
		}
		switch c.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("checks[%d] %q: unknown auth mode %q", i, c.Name, c.Auth.Mode)
		}
	}

	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}
