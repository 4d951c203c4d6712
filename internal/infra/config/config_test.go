package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Chat.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Chat.MaxIterations)
	}
	if cfg.Chat.ContextCeilingBytes != 20*1024*1024 {
		t.Errorf("ContextCeilingBytes = %d, want 20 MiB", cfg.Chat.ContextCeilingBytes)
	}
	if cfg.Chat.DefaultTimezone != "America/Recife" {
		t.Errorf("DefaultTimezone = %q", cfg.Chat.DefaultTimezone)
	}
	if cfg.Server.MaxUploadBytes != 19922944 {
		t.Errorf("MaxUploadBytes = %d, want 19922944", cfg.Server.MaxUploadBytes)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.LLM.Provider)
	}
	if cfg.FeatureEnabled(FeatureStructuredExtraction) {
		t.Error("structured_extraction should be off by default")
	}
	if !strings.Contains(cfg.Chat.SystemInstruction, "get_current_utc_time") {
		t.Error("system instruction should mention the clock tool")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	t.Setenv("PLANIT_LLM_API_KEY", "k")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.MaxIterations != 10 {
		t.Errorf("expected defaults, got MaxIterations=%d", cfg.Chat.MaxIterations)
	}
	if cfg.LLM.APIKey != "k" {
		t.Errorf("APIKey = %q, want env override", cfg.LLM.APIKey)
	}
}

func TestLoadNonExistentWithoutKeyFails(t *testing.T) {
	t.Setenv("PLANIT_LLM_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected validation error for missing api key")
	}
	assertContains(t, err.Error(), "llm.api_key is empty")
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
server:
  addr: "127.0.0.1:9090"
auth:
  tokens:
    - token: "secret-1"
      user_id: "ana"
      name: "Ana"
llm:
  api_key: "test-key"
  model: "gemini-2.5-pro"
chat:
  max_iterations: 6
  model_timeout: 45s
logger:
  level: "debug"
features:
  structured_extraction: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0].UserID != "ana" {
		t.Errorf("Tokens = %+v", cfg.Auth.Tokens)
	}
	if cfg.LLM.Model != "gemini-2.5-pro" || cfg.LLM.APIKey != "test-key" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Chat.MaxIterations != 6 {
		t.Errorf("MaxIterations = %d, want 6", cfg.Chat.MaxIterations)
	}
	if cfg.Chat.ModelTimeout != 45*time.Second {
		t.Errorf("ModelTimeout = %v, want 45s", cfg.Chat.ModelTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Chat.ToolTimeout != 15*time.Second {
		t.Errorf("ToolTimeout = %v, want default 15s", cfg.Chat.ToolTimeout)
	}
	if !cfg.FeatureEnabled(FeatureStructuredExtraction) {
		t.Error("structured_extraction should be enabled")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "chat: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "llm:\n  api_key: k\n")
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected permission error")
	}
	assertContains(t, err.Error(), "insecure permissions")
}

func TestValidatePermissions(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		mode    os.FileMode
		wantErr bool
	}{
		{0o600, false},
		{0o644, false},
		{0o640, false},
		{0o660, true},
		{0o646, true},
	} {
		path := filepath.Join(dir, "perm.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, tt.mode); err != nil {
			t.Fatal(err)
		}
		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("mode %o: err = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}

	if err := validatePermissions(filepath.Join(dir, "nope")); err == nil {
		t.Error("expected stat error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLANIT_SERVER_ADDR", ":7000")
	t.Setenv("PLANIT_LLM_MODEL", "gemini-2.0-flash")
	t.Setenv("PLANIT_LOGGER_LEVEL", "debug")
	t.Setenv("PLANIT_TRACER_ENABLED", "true")
	t.Setenv("PLANIT_TRACER_EXPORTER", "stdout")
	t.Setenv("PLANIT_STORE_PATH", "/var/lib/planit.db")
	t.Setenv("PLANIT_CHAT_MAX_ITERATIONS", "4")
	t.Setenv("PLANIT_CHAT_MODEL_TIMEOUT", "5s")
	t.Setenv("PLANIT_SECURITY_AUDIT_LOG", "/var/log/planit/audit.jsonl")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		t.Errorf("Tracer = %+v", cfg.Tracer)
	}
	if cfg.Store.Path != "/var/lib/planit.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Chat.MaxIterations != 4 {
		t.Errorf("MaxIterations = %d, want 4", cfg.Chat.MaxIterations)
	}
	if cfg.Chat.ModelTimeout != 5*time.Second {
		t.Errorf("ModelTimeout = %v, want 5s", cfg.Chat.ModelTimeout)
	}
	if cfg.Security.AuditLog != "/var/log/planit/audit.jsonl" {
		t.Errorf("AuditLog = %q", cfg.Security.AuditLog)
	}
}

func TestEnvOverridesIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PLANIT_CHAT_MAX_ITERATIONS", "many")
	t.Setenv("PLANIT_CHAT_MODEL_TIMEOUT", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Chat.MaxIterations != 10 || cfg.Chat.ModelTimeout != 90*time.Second {
		t.Errorf("malformed values should be ignored: %+v", cfg.Chat)
	}
}

func TestEnvOverridesGoogleAPIKeyFallback(t *testing.T) {
	t.Setenv("PLANIT_LLM_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.LLM.APIKey != "g-key" {
		t.Errorf("APIKey = %q, want g-key", cfg.LLM.APIKey)
	}

	t.Setenv("PLANIT_LLM_API_KEY", "p-key")
	cfg = Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.LLM.APIKey != "p-key" {
		t.Errorf("APIKey = %q, PLANIT_LLM_API_KEY should win", cfg.LLM.APIKey)
	}
}

func TestEnvOverridesFeatureFlags(t *testing.T) {
	t.Setenv("PLANIT_FEATURE_STRUCTURED_EXTRACTION", "1")
	t.Setenv("PLANIT_FEATURE_SOMETHING_ELSE", "false")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if !cfg.FeatureEnabled("structured_extraction") {
		t.Error("structured_extraction should be enabled by env")
	}
	if cfg.FeatureEnabled("something_else") {
		t.Error("something_else should be disabled")
	}
	if cfg.FeatureEnabled("never_set") {
		t.Error("unknown flags are off")
	}
}

func TestEnvOverridesAuthToken(t *testing.T) {
	t.Setenv("PLANIT_AUTH_TOKEN", "tok")
	t.Setenv("PLANIT_AUTH_USER_ID", "")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if len(cfg.Auth.Tokens) != 1 {
		t.Fatalf("Tokens = %+v", cfg.Auth.Tokens)
	}
	if cfg.Auth.Tokens[0].Token != "tok" || cfg.Auth.Tokens[0].UserID != "default" {
		t.Errorf("Token = %+v", cfg.Auth.Tokens[0])
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("my-secret", "passphrase")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if enc == "my-secret" || !strings.Contains(enc, ":") {
		t.Fatalf("unexpected ciphertext %q", enc)
	}
	dec, err := DecryptValue(enc, "passphrase")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if dec != "my-secret" {
		t.Errorf("DecryptValue = %q, want my-secret", dec)
	}

	again, err := EncryptValue("my-secret", "passphrase")
	if err != nil {
		t.Fatal(err)
	}
	if again == enc {
		t.Error("salt and nonce should make every ciphertext unique")
	}
}

func TestDecryptValueErrors(t *testing.T) {
	good, err := EncryptValue("x", "right")
	if err != nil {
		t.Fatal(err)
	}
	for name, in := range map[string]string{
		"no separator":     "deadbeef",
		"bad salt hex":     "zz:00",
		"bad payload hex":  "00:zz",
		"too short":        "00112233445566778899aabbccddeeff:00",
		"wrong passphrase": good,
	} {
		if _, err := DecryptValue(in, "wrong"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	t.Setenv("PLANIT_LLM_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("PLANIT_CONFIG_KEY", "master")

	apiKey, err := EncryptValue("real-api-key", "master")
	if err != nil {
		t.Fatal(err)
	}
	token, err := EncryptValue("real-token", "master")
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
llm:
  api_key: "enc:`+apiKey+`"
auth:
  tokens:
    - token: "enc:`+token+`"
      user_id: "ana"
    - token: "plain-token"
      user_id: "bob"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "real-api-key" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.Auth.Tokens[0].Token != "real-token" {
		t.Errorf("Token[0] = %q", cfg.Auth.Tokens[0].Token)
	}
	if cfg.Auth.Tokens[1].Token != "plain-token" {
		t.Errorf("Token[1] = %q, plain values stay as-is", cfg.Auth.Tokens[1].Token)
	}
}

func TestLoadDecryptSecretsError(t *testing.T) {
	t.Setenv("PLANIT_LLM_API_KEY", "")
	t.Setenv("PLANIT_CONFIG_KEY", "master")
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
llm:
  api_key: "enc:not-valid"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected decrypt error")
	}
	assertContains(t, err.Error(), "llm api_key")
}
