package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"

	"github.com/dshills/phiscrub/internal/config"
	"github.com/dshills/phiscrub/internal/fhirdoc"
	"github.com/dshills/phiscrub/internal/providers"
)

// resetFlags resets all package-level flag variables to their zero values.
func resetFlags() {
	flagOut = ""
	flagAudit = ""
	flagFormat = ""
	flagPolicy = ""
	flagProvider = ""
	flagModel = ""
	flagURL = ""
	flagNoModel = false
	flagFailOn = ""
	flagAuditDB = ""
	flagLogLevel = ""
	flagAddr = ""
}

// isolate points config and cache lookups at a temp dir and clears any
// PHISCRUB_* variables from the environment.
func isolate(t *testing.T) string {
	t.Helper()
	resetFlags()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	for _, k := range config.Keys() {
		name := config.EnvName(k)
		if _, ok := os.LookupEnv(name); ok {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}

	saved := exitCode
	t.Cleanup(func() { exitCode = saved })
	exitCode = ExitSuccess
	return dir
}

const testBundle = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {"resource": {
      "resourceType": "Patient",
      "id": "p1",
      "name": [{"family": "Smith", "given": ["Jon"]}],
      "telecom": [{"system": "phone", "value": "555-123-4567"}],
      "birthDate": "1980-04-02"
    }},
    {"resource": {"resourceType": "Observation", "status": "final", "valueString": "Jon Smith"}}
  ]
}`

func writeBundle(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- buildOverrides tests ---

func TestBuildOverrides_NoFlags(t *testing.T) {
	resetFlags()
	m := buildOverrides()
	if len(m) != 0 {
		t.Errorf("buildOverrides() with no flags = %v, want empty map", m)
	}
}

func TestBuildOverrides_AllFlags(t *testing.T) {
	resetFlags()
	flagProvider = "http"
	flagModel = "obi/deid_roberta_i2b2"
	flagURL = "http://localhost:9000"
	flagFormat = "json"
	flagFailOn = "NAME"
	flagPolicy = "policy.yaml"
	flagAuditDB = "postgres://localhost/audit"
	flagAddr = ":9090"
	flagLogLevel = "debug"

	m := buildOverrides()

	expected := map[string]string{
		"classifier.provider": "http",
		"classifier.model":    "obi/deid_roberta_i2b2",
		"classifier.url":      "http://localhost:9000",
		"format":              "json",
		"failOn":              "NAME",
		"policy.file":         "policy.yaml",
		"audit.databaseURL":   "postgres://localhost/audit",
		"server.addr":         ":9090",
		"log.level":           "debug",
	}

	if len(m) != len(expected) {
		t.Fatalf("buildOverrides() returned %d entries, want %d", len(m), len(expected))
	}
	for k, v := range expected {
		if m[k] != v {
			t.Errorf("buildOverrides()[%q] = %q, want %q", k, m[k], v)
		}
	}
}

func TestBuildOverrides_NoModelWins(t *testing.T) {
	resetFlags()
	flagProvider = "huggingface"
	flagNoModel = true

	m := buildOverrides()
	if m["classifier.provider"] != "none" {
		t.Errorf("classifier.provider = %q, want %q", m["classifier.provider"], "none")
	}
}

// --- loadConfig tests ---

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		format string
		failOn string
	}{
		{"bad format", "xml", ""},
		{"bad threshold", "", "SEVERE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			flagFormat = tt.format
			flagFailOn = tt.failOn
			_, err := loadConfig()
			if err == nil {
				t.Fatal("expected error")
			}
			if exitCodeFor(err) != ExitUsageError {
				t.Errorf("exitCodeFor = %d, want %d", exitCodeFor(err), ExitUsageError)
			}
		})
	}
}

// --- readInput tests ---

func TestReadInput_Formats(t *testing.T) {
	dir := t.TempDir()
	yamlBundle := "resourceType: Bundle\nentry:\n  - resource:\n      resourceType: Patient\n      birthDate: \"1980-04-02\"\n"

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "b.json", testBundle},
		{"yaml", "b.yaml", yamlBundle},
		{"yml", "b.yml", yamlBundle},
		{"sniffed json", "b.txt", testBundle},
		{"sniffed yaml", "b.fhir", yamlBundle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeBundle(t, dir, tt.file, tt.content)
			doc, name, err := readInput(path)
			if err != nil {
				t.Fatalf("readInput: %v", err)
			}
			if name != path {
				t.Errorf("name = %q, want %q", name, path)
			}
			rt, ok := doc.Get("resourceType")
			if !ok || rt.Str != "Bundle" {
				t.Errorf("resourceType = %v, want Bundle", rt)
			}
		})
	}
}

func TestReadInput_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := readInput(filepath.Join(dir, "missing.json"))
	if err == nil || exitCodeFor(err) != ExitRuntimeError {
		t.Errorf("missing file: err = %v, want runtime error", err)
	}

	path := writeBundle(t, dir, "bad.json", `{"entry": [`)
	_, _, err = readInput(path)
	if !fhirdoc.IsParseError(err) {
		t.Errorf("malformed JSON: err = %v, want parse error", err)
	}
}

// --- redact and scan command tests ---

func TestRedactCmd_WritesDocumentAndAudit(t *testing.T) {
	dir := isolate(t)
	in := writeBundle(t, dir, "bundle.json", testBundle)
	out := filepath.Join(dir, "out.json")
	audit := filepath.Join(dir, "audit.json")

	redactCmd.SetArgs([]string{"--out", out, "--audit", audit, "--format", "json", in})
	if err := redactCmd.Execute(); err != nil {
		t.Fatalf("redact returned error: %v", err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("exitCode = %d, want %d", exitCode, ExitSuccess)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading redacted bundle: %v", err)
	}
	doc, err := fhirdoc.Parse(data)
	if err != nil {
		t.Fatalf("redacted bundle is not valid JSON: %v", err)
	}
	if strings.Contains(string(data), `"Smith"`) {
		t.Error("patient family name survived redaction")
	}
	if !strings.Contains(string(data), `"[NAME]"`) {
		t.Error("redacted bundle has no [NAME] token")
	}
	if !strings.Contains(string(data), `"Jon Smith"`) {
		t.Error("Observation should pass through unchanged")
	}
	entry, _ := doc.Get("entry")
	if len(entry.Items) != 2 {
		t.Errorf("entry has %d items, want 2", len(entry.Items))
	}

	auditData, err := os.ReadFile(audit)
	if err != nil {
		t.Fatalf("reading audit: %v", err)
	}
	var report struct {
		RunID    string `json:"runId"`
		Entities []struct {
			Keypath string `json:"keypath"`
			Label   string `json:"label"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(auditData, &report); err != nil {
		t.Fatalf("audit is not valid JSON: %v", err)
	}
	if report.RunID == "" {
		t.Error("audit has no run id")
	}
	found := false
	for _, e := range report.Entities {
		if e.Keypath == "Patient.birthDate" && e.Label == "DATE" {
			found = true
		}
	}
	if !found {
		t.Errorf("audit missing Patient.birthDate DATE row: %+v", report.Entities)
	}
}

func TestRedactCmd_FailOn(t *testing.T) {
	tests := []struct {
		failOn string
		want   int
	}{
		{"none", ExitSuccess},
		{"any", ExitFindings},
		{"NAME", ExitFindings},
	}
	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			dir := isolate(t)
			in := writeBundle(t, dir, "bundle.json", testBundle)

			redactCmd.SetArgs([]string{"--out", filepath.Join(dir, "out.json"), "--fail-on", tt.failOn, in})
			if err := redactCmd.Execute(); err != nil {
				t.Fatalf("redact returned error: %v", err)
			}
			if exitCode != tt.want {
				t.Errorf("exitCode = %d, want %d", exitCode, tt.want)
			}
		})
	}
}

func TestRedactCmd_ParseErrorIsUsageError(t *testing.T) {
	dir := isolate(t)
	in := writeBundle(t, dir, "bundle.json", `[1, 2]`)

	redactCmd.SetArgs([]string{"--out", filepath.Join(dir, "out.json"), in})
	if err := redactCmd.Execute(); err != nil {
		t.Fatalf("redact returned error: %v", err)
	}
	if exitCode != ExitUsageError {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitUsageError)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.json")); err == nil {
		t.Error("no output should be written for an invalid bundle")
	}
}

func TestRedactCmd_UnknownProvider(t *testing.T) {
	dir := isolate(t)
	in := writeBundle(t, dir, "bundle.json", testBundle)

	redactCmd.SetArgs([]string{"--out", filepath.Join(dir, "out.json"), "--provider", "bogus", in})
	if err := redactCmd.Execute(); err != nil {
		t.Fatalf("redact returned error: %v", err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitRuntimeError)
	}
}

func TestScanCmd_CSV(t *testing.T) {
	dir := isolate(t)
	in := writeBundle(t, dir, "bundle.json", testBundle)
	out := filepath.Join(dir, "scan.csv")

	scanCmd.SetArgs([]string{"--out", out, "--format", "csv", in})
	if err := scanCmd.Execute(); err != nil {
		t.Fatalf("scan returned error: %v", err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("exitCode = %d, want %d", exitCode, ExitSuccess)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "keypath,original,label,confidence,source" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) < 2 {
		t.Fatal("scan found nothing")
	}
	if !strings.Contains(string(data), "Patient.telecom.value,555-123-4567,CONTACT") {
		t.Errorf("scan output missing telecom row:\n%s", data)
	}
}

func TestScanCmd_Policy(t *testing.T) {
	dir := isolate(t)
	in := writeBundle(t, dir, "bundle.json", testBundle)
	policy := writeBundle(t, dir, "policy.yaml", "skipResourceTypes:\n  - Patient\n")
	out := filepath.Join(dir, "scan.json")

	scanCmd.SetArgs([]string{"--out", out, "--format", "json", "--policy", policy, in})
	if err := scanCmd.Execute(); err != nil {
		t.Fatalf("scan returned error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var report struct {
		Entities []json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Entities) != 0 {
		t.Errorf("skipped Patient still produced %d rows", len(report.Entities))
	}
}

func TestRedactCmd_TooManyArgs(t *testing.T) {
	isolate(t)

	redactCmd.SetArgs([]string{"a.json", "b.json"})
	if err := redactCmd.Execute(); err == nil {
		t.Error("redact with two inputs should return error")
	}
}

// --- exitCodeFor tests ---

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", usagef("bad flag"), ExitUsageError},
		{"parse", fhirdoc.ShapeError("entry is not an array"), ExitUsageError},
		{"other", os.ErrPermission, ExitRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// --- version command tests ---

func TestVersionCmd_Execute(t *testing.T) {
	// versionCmd writes to os.Stdout directly, but we can verify it runs without error.
	err := versionCmd.Execute()
	if err != nil {
		t.Errorf("version command returned error: %v", err)
	}
}

// --- classifiers command tests ---

func TestClassifiersListCmd_Execute(t *testing.T) {
	classifiersCmd.SetArgs([]string{"list"})
	err := classifiersCmd.Execute()
	if err != nil {
		t.Errorf("classifiers list command returned error: %v", err)
	}
}

func TestClassifierDescriptions_AllProviders(t *testing.T) {
	for _, name := range providers.Names() {
		if classifierDescriptions[name] == "" {
			t.Errorf("provider %q has no description", name)
		}
	}
}

func TestClassifiersDoctor_None(t *testing.T) {
	isolate(t)

	classifiersCmd.SetArgs([]string{"doctor", "--no-model"})
	if err := classifiersCmd.Execute(); err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	if exitCode != ExitSuccess {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitSuccess)
	}
}

// --- config command tests ---

func TestConfigInit_CreatesFile(t *testing.T) {
	tmpDir := isolate(t)

	configCmd.SetArgs([]string{"init"})
	err := configCmd.Execute()
	if err != nil {
		t.Fatalf("config init returned error: %v", err)
	}

	configPath := filepath.Join(tmpDir, "phiscrub", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config init did not create config.yaml: %v", err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid YAML: %v", err)
	}
	if cfg.Classifier.Provider == "" {
		t.Error("config file has empty classifier provider")
	}
}

func TestConfigInit_AlreadyExists(t *testing.T) {
	tmpDir := isolate(t)

	cfgDir := filepath.Join(tmpDir, "phiscrub")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	original := "classifier:\n  provider: http\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	configCmd.SetArgs([]string{"init"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config init with existing file returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfgDir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != original {
		t.Errorf("config init overwrote existing file:\n%s", data)
	}
}

func TestConfigSet_StartsFromDefaults(t *testing.T) {
	tmpDir := isolate(t)

	configCmd.SetArgs([]string{"set", "classifier.provider", "http"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config set returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "phiscrub", "config.yaml"))
	if err != nil {
		t.Fatalf("cannot read config file: %v", err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid YAML: %v", err)
	}
	if cfg.Classifier.Provider != "http" {
		t.Errorf("provider = %q, want %q", cfg.Classifier.Provider, "http")
	}
	if cfg.Format != config.Default().Format {
		t.Errorf("format = %q, want default %q", cfg.Format, config.Default().Format)
	}
}

func TestConfigSet_InvalidKey(t *testing.T) {
	isolate(t)

	configCmd.SetArgs([]string{"set", "unknownKey", "value"})
	err := configCmd.Execute()
	if err == nil {
		t.Error("config set with invalid key should return error")
	}
}

func TestConfigSet_MissingArgs(t *testing.T) {
	isolate(t)

	configCmd.SetArgs([]string{"set", "format"})
	err := configCmd.Execute()
	if err == nil {
		t.Error("config set with 1 arg should return error (requires 2)")
	}
}

func TestConfigShow_Execute(t *testing.T) {
	isolate(t)

	configCmd.SetArgs([]string{"show"})
	err := configCmd.Execute()
	if err != nil {
		t.Errorf("config show returned error: %v", err)
	}
}

func TestConfigKeys_Execute(t *testing.T) {
	configCmd.SetArgs([]string{"keys"})
	if err := configCmd.Execute(); err != nil {
		t.Errorf("config keys returned error: %v", err)
	}
}

// --- cache command tests ---

func TestCacheShow_Execute(t *testing.T) {
	isolate(t)

	cacheCmd.SetArgs([]string{"show"})
	err := cacheCmd.Execute()
	if err != nil {
		t.Errorf("cache show returned error: %v", err)
	}
}

func TestCacheClear_Execute(t *testing.T) {
	tmpDir := isolate(t)

	// Create a fake cache entry
	cacheDir := filepath.Join(tmpDir, "phiscrub")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, "abc123.json"), []byte(`{"key":"test"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cacheCmd.SetArgs([]string{"clear"})
	err := cacheCmd.Execute()
	if err != nil {
		t.Errorf("cache clear returned error: %v", err)
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatalf("cannot read cache dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			t.Errorf("cache clear did not remove %s", e.Name())
		}
	}
}

// --- exit code constants tests ---

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		want int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitFindings", ExitFindings, 1},
		{"ExitUsageError", ExitUsageError, 2},
		{"ExitAuthError", ExitAuthError, 3},
		{"ExitRuntimeError", ExitRuntimeError, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.code, tt.want)
			}
		})
	}
}
