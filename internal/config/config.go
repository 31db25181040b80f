// Package config loads gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the gateway reads at startup.
type Config struct {
	ServerAddr     string
	GRPCHealthAddr string
	BasePath       string
	LogLevel       string

	TLSCertFile      string
	TLSKeyFile       string
	ClientCertHeader string

	IntrospectionEndpoint string
	IntrospectionUser     string
	IntrospectionPassword string
	RequiredScope         string

	ClientDetailsEndpoint string
	KeySetCacheTTL        time.Duration

	OrganisationID  string
	SigningKeyID    string
	SigningKeyPath  string
	AudiencePrefix  string
	ConsentIDPrefix string
	UpstreamTimeout time.Duration

	Fido FidoEndpoints

	RateLimitBurst     int
	RateLimitPerSecond int
	MaxBodyBytes       int64
}

// FidoEndpoints are the four FIDO server operations.
type FidoEndpoints struct {
	RegistrationOptions string
	Registration        string
	SignOptions         string
	Sign                string
}

// Load reads .env files (without overriding the real environment) and then
// the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error
	str := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	must := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	num := func(key string, def int) int {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative integer", key))
			return def
		}
		return n
	}

	cfg := Config{
		ServerAddr:     str("SERVER_ADDR", ":"+str("SERVER_PORT", "4001")),
		GRPCHealthAddr: str("GRPC_HEALTH_ADDR", ""),
		BasePath:       strings.TrimSuffix(str("BASE_PATH", "/open-banking"), "/"),
		LogLevel:       str("LOG_LEVEL", "info"),

		TLSCertFile:      str("TLS_CERT_FILE", ""),
		TLSKeyFile:       str("TLS_KEY_FILE", ""),
		ClientCertHeader: str("CLIENT_CERT_HEADER", ""),

		IntrospectionEndpoint: must("INTROSPECTION_ENDPOINT"),
		IntrospectionUser:     str("INTROSPECTION_USER", ""),
		IntrospectionPassword: str("INTROSPECTION_PASSWORD", ""),
		RequiredScope:         str("REQUIRED_SCOPE", "payments"),

		ClientDetailsEndpoint: strings.TrimSuffix(must("CLIENT_DETAILS_ENDPOINT"), "/"),
		KeySetCacheTTL:        time.Duration(num("KEYSET_CACHE_TTL_SECONDS", 300)) * time.Second,

		OrganisationID:  must("ORGANISATION_ID"),
		SigningKeyID:    must("SIGNING_CERT_KID"),
		SigningKeyPath:  must("SIGNING_KEY_PATH"),
		AudiencePrefix:  must("API_AUDIENCE_PREFIX"),
		ConsentIDPrefix: str("CONSENT_ID_PREFIX", "urn:fapigw:"),
		UpstreamTimeout: time.Duration(num("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second,

		Fido: FidoEndpoints{
			RegistrationOptions: must("FIDO_REGISTRATION_OPTIONS"),
			Registration:        must("FIDO_REGISTRATION"),
			SignOptions:         must("FIDO_SIGN_OPTIONS"),
			Sign:                must("FIDO_SIGN"),
		},

		RateLimitBurst:     num("RATE_LIMIT_BURST", 20),
		RateLimitPerSecond: num("RATE_LIMIT_PER_SECOND", 10),
		MaxBodyBytes:       int64(num("MAX_BODY_BYTES", 1<<20)),
	}

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	// The forwarded header exists only behind a TLS-terminating proxy.
	if cfg.TLSEnabled() {
		if cfg.ClientCertHeader != "" {
			errs = append(errs, errors.New("CLIENT_CERT_HEADER cannot be combined with TLS_CERT_FILE"))
		}
	} else if cfg.ClientCertHeader == "" {
		cfg.ClientCertHeader = "X-Client-Cert"
	}
	if cfg.UpstreamTimeout == 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT_SECONDS must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TLSEnabled reports whether the gateway terminates TLS itself.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
