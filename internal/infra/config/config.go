package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Feature flag names.
const (
	FeatureStructuredExtraction = "structured_extraction"
)

// envPrefix namespaces every environment override.
const envPrefix = "PLANIT_"

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Chat       ChatConfig       `yaml:"chat"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Store      StoreConfig      `yaml:"store"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Security   SecurityConfig   `yaml:"security"`
	Features   map[string]bool  `yaml:"features,omitempty"`
	Includes   []string         `yaml:"includes,omitempty"`
}

// ServerConfig holds HTTP listener and upload settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AllowedMIMETypes []string      `yaml:"allowed_mime_types"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static"
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig maps one bearer token to the user it authenticates.
type TokenConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email,omitempty"`
}

// LLMConfig holds generative-model settings.
type LLMConfig struct {
	Provider       string               `yaml:"provider"` // "gemini"
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url,omitempty"`
	Model          string               `yaml:"model"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the model client.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for the model client.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ChatConfig tunes the orchestration loop.
type ChatConfig struct {
	SystemInstruction   string        `yaml:"system_instruction"`
	MaxIterations       int           `yaml:"max_iterations"`
	ModelTimeout        time.Duration `yaml:"model_timeout"`
	ToolTimeout         time.Duration `yaml:"tool_timeout"`
	ContextCeilingBytes int           `yaml:"context_ceiling_bytes"`
	DefaultTimezone     string        `yaml:"default_timezone"`
}

// ExtractionConfig tunes structured extraction.
type ExtractionConfig struct {
	CourseInstruction string        `yaml:"course_instruction"`
	Timeout           time.Duration `yaml:"timeout"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// SecurityConfig holds HTTP hardening and audit settings.
type SecurityConfig struct {
	Headers   bool            `yaml:"headers"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	AuditLog  string          `yaml:"audit_log,omitempty"` // JSONL path for tool invocations; empty disables
}

// RateLimitConfig holds per-client-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// FeatureEnabled reports whether the named feature flag is on.
// Unknown flags are off.
func (c *Config) FeatureEnabled(name string) bool {
	return c.Features[strings.ToLower(name)]
}

const defaultSystemInstruction = `## Language and formatting
Answer in the language of the user's messages. Format dates as DD/MM/YYYY and times in 24-hour form.

## Data protocol
1. Use tools first. Any question about the user's courses, lectures, evaluations, events, routines, schedule or the current date and time must be answered from tool results.
2. Never invent data. If a tool does not return the information, say it could not be found.
3. Reading needs no permission: call read tools immediately and never ask the user whether you may look at their data.
4. Before editing or deleting anything, explain the consequence and ask the user for explicit confirmation.
5. If an action needs a tool you do not have, say you cannot do that yet.
6. Never ask the user for an ID or UUID. Look identifiers up with the tools.

## Timezone
get_current_utc_time returns UTC. Present times in the user's timezone (America/Recife, UTC-3) unless told otherwise.`

const defaultCourseInstruction = `You read course documents such as syllabi and class schedules and return one course as JSON.
Include every lecture and every graded activity you can find. Write datetimes as ISO 8601 with the UTC offset when the document states one.
Use only these evaluation types: exam, quiz, assignment, presentation, lab. Do not invent sessions the document does not list.`

// defaultDataDir returns the persistent data directory under $HOME/.planit.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".planit")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    180 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  19922944,
			AllowedMIMETypes: []string{
				"application/pdf",
				"application/x-javascript", "text/javascript",
				"application/x-python", "text/x-python",
				"text/plain", "text/html", "text/css", "text/md", "text/csv", "text/xml", "text/rtf",
				"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif",
			},
		},
		Auth: AuthConfig{Type: "static"},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			ConnTimeout: 10 * time.Second,
			RespTimeout: 120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Chat: ChatConfig{
			SystemInstruction:   defaultSystemInstruction,
			MaxIterations:       10,
			ModelTimeout:        90 * time.Second,
			ToolTimeout:         15 * time.Second,
			ContextCeilingBytes: 20 * 1024 * 1024,
			DefaultTimezone:     "America/Recife",
		},
		Extraction: ExtractionConfig{
			CourseInstruction: defaultCourseInstruction,
			Timeout:           120 * time.Second,
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "planit.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Security: SecurityConfig{
			Headers: true,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 60,
				Burst:          10,
			},
		},
		Features: map[string]bool{
			FeatureStructuredExtraction: false,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: the main file wins over its includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(envPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps PLANIT_* env vars to config fields.
// PLANIT_FEATURE_<NAME> toggles feature flags; GOOGLE_API_KEY is honoured
// when PLANIT_LLM_API_KEY is unset.
func ApplyEnvOverrides(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("SERVER_ADDR", &cfg.Server.Addr)
	setString("LLM_API_KEY", &cfg.LLM.APIKey)
	setString("LLM_MODEL", &cfg.LLM.Model)
	setString("LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("STORE_PATH", &cfg.Store.Path)
	setString("LOGGER_LEVEL", &cfg.Logger.Level)
	setString("LOGGER_FORMAT", &cfg.Logger.Format)
	setString("TRACER_EXPORTER", &cfg.Tracer.Exporter)
	setString("SECURITY_AUDIT_LOG", &cfg.Security.AuditLog)
	setString("CHAT_DEFAULT_TIMEZONE", &cfg.Chat.DefaultTimezone)
	setDuration("CHAT_MODEL_TIMEOUT", &cfg.Chat.ModelTimeout)

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if v := os.Getenv(envPrefix + "TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = parseBool(v)
	}
	if v := os.Getenv(envPrefix + "CHAT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chat.MaxIterations = n
		}
	}

	// A single token/user pair can be supplied without a config file.
	if tok := os.Getenv(envPrefix + "AUTH_TOKEN"); tok != "" {
		user := os.Getenv(envPrefix + "AUTH_USER_ID")
		if user == "" {
			user = "default"
		}
		cfg.Auth.Tokens = append(cfg.Auth.Tokens, TokenConfig{Token: tok, UserID: user, Name: user})
	}

	const featurePrefix = envPrefix + "FEATURE_"
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, featurePrefix) {
			continue
		}
		if cfg.Features == nil {
			cfg.Features = make(map[string]bool)
		}
		cfg.Features[strings.ToLower(strings.TrimPrefix(name, featurePrefix))] = parseBool(value)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// decryptSecrets replaces "enc:..." values of the API key and auth tokens.
func decryptSecrets(cfg *Config, passphrase string) error {
	decrypt := func(field *string, what string) error {
		if !strings.HasPrefix(*field, "enc:") {
			return nil
		}
		plain, err := DecryptValue(strings.TrimPrefix(*field, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		*field = plain
		return nil
	}

	if err := decrypt(&cfg.LLM.APIKey, "llm api_key"); err != nil {
		return err
	}
	for i := range cfg.Auth.Tokens {
		if err := decrypt(&cfg.Auth.Tokens[i].Token, "auth token for "+cfg.Auth.Tokens[i].UserID); err != nil {
			return err
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
