package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateAuth(cfg, ve)
	validateLLM(cfg, ve)
	validateChat(cfg, ve)
	validateExtraction(cfg, ve)
	validateStore(cfg, ve)
	validateObservability(cfg, ve)
	validateSecurity(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", s.Addr, err)
	}
	if s.ReadTimeout <= 0 {
		ve.Add("server.read_timeout must be > 0")
	}
	if s.WriteTimeout <= 0 {
		ve.Add("server.write_timeout must be > 0")
	}
	if s.ShutdownTimeout <= 0 {
		ve.Add("server.shutdown_timeout must be > 0")
	}
	if s.MaxUploadBytes <= 0 {
		ve.Add("server.max_upload_bytes must be > 0")
	}
	for i, m := range s.AllowedMIMETypes {
		if !strings.Contains(m, "/") {
			ve.Add("server.allowed_mime_types[%d] %q is not a MIME type", i, m)
		}
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	if cfg.Auth.Type != "static" {
		ve.Add("auth.type %q is invalid (want: static)", cfg.Auth.Type)
	}
	seenTokens := make(map[string]bool)
	for i, t := range cfg.Auth.Tokens {
		if t.Token == "" {
			ve.Add("auth.tokens[%d].token must not be empty", i)
		}
		if t.UserID == "" {
			ve.Add("auth.tokens[%d].user_id must not be empty", i)
		}
		if t.Token != "" && seenTokens[t.Token] {
			ve.Add("auth.tokens[%d]: duplicate token", i)
		}
		seenTokens[t.Token] = true
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	l := cfg.LLM
	if l.Provider != "gemini" {
		ve.Add("llm.provider %q is invalid (want: gemini)", l.Provider)
	}
	if l.APIKey == "" {
		ve.Add("llm.api_key is empty (set via PLANIT_LLM_API_KEY or GOOGLE_API_KEY)")
	}
	if l.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if l.BaseURL != "" {
		if u, err := url.Parse(l.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			ve.Add("llm.base_url %q must be an absolute URL", l.BaseURL)
		}
	}
	if l.ConnTimeout < 0 || l.RespTimeout < 0 {
		ve.Add("llm.conn_timeout and llm.resp_timeout must not be negative")
	}
	if cb := l.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateChat(cfg *Config, ve *ValidationError) {
	c := cfg.Chat
	if strings.TrimSpace(c.SystemInstruction) == "" {
		ve.Add("chat.system_instruction must not be empty")
	}
	if c.MaxIterations <= 0 || c.MaxIterations > 50 {
		ve.Add("chat.max_iterations must be between 1 and 50, got %d", c.MaxIterations)
	}
	if c.ModelTimeout <= 0 {
		ve.Add("chat.model_timeout must be > 0")
	}
	if c.ToolTimeout <= 0 {
		ve.Add("chat.tool_timeout must be > 0")
	}
	if c.ContextCeilingBytes < 1024 {
		ve.Add("chat.context_ceiling_bytes must be at least 1024")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil || c.DefaultTimezone == "" {
		ve.Add("chat.default_timezone %q is not a valid IANA zone", c.DefaultTimezone)
	}
}

func validateExtraction(cfg *Config, ve *ValidationError) {
	if !cfg.FeatureEnabled(FeatureStructuredExtraction) {
		return
	}
	if strings.TrimSpace(cfg.Extraction.CourseInstruction) == "" {
		ve.Add("extraction.course_instruction must not be empty when structured_extraction is enabled")
	}
	if cfg.Extraction.Timeout <= 0 {
		ve.Add("extraction.timeout must be > 0")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"stdout": true, "noop": true, "": true}
)

func validateObservability(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}

func validateSecurity(cfg *Config, ve *ValidationError) {
	rl := cfg.Security.RateLimit
	if !rl.Enabled {
		return
	}
	if rl.RequestsPerMin <= 0 {
		ve.Add("security.rate_limit.requests_per_min must be > 0 when enabled")
	}
	if rl.Burst <= 0 {
		ve.Add("security.rate_limit.burst must be > 0 when enabled")
	}
	for i, p := range rl.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("security.rate_limit.trusted_proxies[%d] %q is not an IP address", i, p)
		}
	}
}
