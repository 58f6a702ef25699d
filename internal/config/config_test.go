package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// isolate points the config dir and .env lookup at fresh temp locations and
// clears every PHISCRUB_ variable for the duration of the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range Keys() {
		name := EnvName(k)
		if _, ok := os.LookupEnv(name); ok {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	old := dotEnvFile
	dotEnvFile = filepath.Join(dir, ".env")
	t.Cleanup(func() { dotEnvFile = old })
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Classifier.Provider != "none" {
		t.Errorf("Default provider = %q, want %q", cfg.Classifier.Provider, "none")
	}
	if cfg.Format != "text" {
		t.Errorf("Default format = %q, want %q", cfg.Format, "text")
	}
	if cfg.FailOn != "none" {
		t.Errorf("Default failOn = %q, want %q", cfg.FailOn, "none")
	}
	if !cfg.Classifier.Batch {
		t.Error("Default batch should be true")
	}
	if cfg.Cache.Backend != "file" || !cfg.Cache.Enabled {
		t.Errorf("Default cache = %+v", cfg.Cache)
	}
	if cfg.Audit.Table != "phiscrub_audit" {
		t.Errorf("Default audit table = %q", cfg.Audit.Table)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"format":                    "PHISCRUB_FORMAT",
		"failOn":                    "PHISCRUB_FAIL_ON",
		"classifier.url":            "PHISCRUB_CLASSIFIER_URL",
		"classifier.timeoutSeconds": "PHISCRUB_CLASSIFIER_TIMEOUT_SECONDS",
		"cache.redisURL":            "PHISCRUB_CACHE_REDIS_URL",
		"audit.databaseURL":         "PHISCRUB_AUDIT_DATABASE_URL",
		"policy.skipResourceTypes":  "PHISCRUB_POLICY_SKIP_RESOURCE_TYPES",
	}
	for key, want := range tests {
		if got := EnvName(key); got != want {
			t.Errorf("EnvName(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestKeysCoverFlatten(t *testing.T) {
	flat := flatten(Default())
	if len(flat) != len(Keys()) {
		t.Fatalf("flatten has %d keys, Keys() has %d", len(flat), len(Keys()))
	}
	for _, k := range Keys() {
		if _, ok := flat[k]; !ok {
			t.Errorf("flatten missing %q", k)
		}
		if err := SetField(&Config{}, k, "1"); err != nil {
			t.Errorf("SetField(%q) error: %v", k, err)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("PHISCRUB_CLASSIFIER_PROVIDER", "http")
	t.Setenv("PHISCRUB_FAIL_ON", "NAME")
	t.Setenv("PHISCRUB_CACHE_TTL_SECONDS", "60")
	t.Setenv("PHISCRUB_CLASSIFIER_BATCH", "false")
	t.Setenv("PHISCRUB_POLICY_SKIP_RESOURCE_TYPES", "Device,Location")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Classifier.Provider != "http" {
		t.Errorf("Provider = %q, want http", cfg.Classifier.Provider)
	}
	if cfg.FailOn != "NAME" {
		t.Errorf("FailOn = %q, want NAME", cfg.FailOn)
	}
	if cfg.Cache.TTLSeconds != 60 {
		t.Errorf("TTLSeconds = %d, want 60", cfg.Cache.TTLSeconds)
	}
	if cfg.Classifier.Batch {
		t.Error("Batch should be false")
	}
	if !reflect.DeepEqual(cfg.Policy.SkipResourceTypes, []string{"Device", "Location"}) {
		t.Errorf("SkipResourceTypes = %v", cfg.Policy.SkipResourceTypes)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)

	fileCfg := Default()
	fileCfg.Format = "json"
	fileCfg.FailOn = "DATE"
	fileCfg.Classifier.Model = "from-file"
	fileCfg.Server.Addr = ":9000"
	if err := Save(fileCfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PHISCRUB_FORMAT=csv\nPHISCRUB_SERVER_ADDR=:7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PHISCRUB_FAIL_ON", "CONTACT")
	t.Setenv("PHISCRUB_SERVER_ADDR", ":6000")

	cfg, err := Load(map[string]string{"format": "sarif", "classifier.model": ""})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Format != "sarif" {
		t.Errorf("Format = %q, want override sarif", cfg.Format)
	}
	if cfg.FailOn != "CONTACT" {
		t.Errorf("FailOn = %q, want env CONTACT", cfg.FailOn)
	}
	if cfg.Server.Addr != ":6000" {
		t.Errorf("Addr = %q, env should beat .env", cfg.Server.Addr)
	}
	if cfg.Classifier.Model != "from-file" {
		t.Errorf("Model = %q, empty override must not win", cfg.Classifier.Model)
	}
	if cfg.Cache.TTLSeconds != 86400 {
		t.Errorf("TTLSeconds = %d, want default", cfg.Cache.TTLSeconds)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PHISCRUB_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if _, set := os.LookupEnv("PHISCRUB_LOG_LEVEL"); set {
		t.Error(".env must not leak into the process environment")
	}
}

func TestLoad_UnknownOverride(t *testing.T) {
	isolate(t)
	if _, err := Load(map[string]string{"maxFindings": "3"}); err == nil {
		t.Error("expected error for unknown override key")
	}
}

func TestLoad_BadFile(t *testing.T) {
	isolate(t)
	path, _ := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("format: [unclosed\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(nil); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	isolate(t)

	cfg, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile on missing file: %v", err)
	}
	if !reflect.DeepEqual(cfg, Config{}) {
		t.Errorf("missing file should give zero Config, got %+v", cfg)
	}

	want := Default()
	want.Policy.StructuralKeys = []string{"comment"}
	want.Audit.DatabaseURL = "postgres://u:p@db/phi"
	if err := Save(want); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	path, _ := ConfigPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadFile() = %+v, want %+v", got, want)
	}
}

func TestSetField(t *testing.T) {
	cfg := Default()
	tests := []struct {
		key, value string
		check      func() bool
	}{
		{"classifier.provider", "huggingface", func() bool { return cfg.Classifier.Provider == "huggingface" }},
		{"classifier.timeoutSeconds", "5", func() bool { return cfg.Classifier.TimeoutSeconds == 5 }},
		{"classifier.batch", "false", func() bool { return !cfg.Classifier.Batch }},
		{"cache.backend", "redis", func() bool { return cfg.Cache.Backend == "redis" }},
		{"policy.skipResourceTypes", "Device, Location,", func() bool {
			return reflect.DeepEqual(cfg.Policy.SkipResourceTypes, []string{"Device", "Location"})
		}},
		{"failOn", "any", func() bool { return cfg.FailOn == "any" }},
	}
	for _, tt := range tests {
		if err := SetField(&cfg, tt.key, tt.value); err != nil {
			t.Errorf("SetField(%q) error: %v", tt.key, err)
			continue
		}
		if !tt.check() {
			t.Errorf("SetField(%q, %q) did not apply", tt.key, tt.value)
		}
	}

	if err := SetField(&cfg, "cache.ttlSeconds", "soon"); err == nil {
		t.Error("expected error for non-integer ttl")
	}
	if err := SetField(&cfg, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Classifier.Token = "hf_secret"
	cfg.Audit.DatabaseURL = "postgres://app:hunter2@db:5432/phi"
	cfg.Cache.RedisURL = "redis://localhost:6379/0"

	r := cfg.Redacted()
	if r.Classifier.Token != "****" {
		t.Errorf("Token = %q", r.Classifier.Token)
	}
	if r.Audit.DatabaseURL != "postgres://app:****@db:5432/phi" {
		t.Errorf("DatabaseURL = %q", r.Audit.DatabaseURL)
	}
	if r.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", r.Cache.RedisURL)
	}
	if cfg.Classifier.Token != "hf_secret" {
		t.Error("Redacted must not modify the receiver")
	}
}
