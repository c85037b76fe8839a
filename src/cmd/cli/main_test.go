package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00}

func TestReadImageValidation(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		stdin   []byte
		wantErr string
	}{
		{name: "ValidPNG", path: write("ok.png", pngHeader)},
		{name: "InvalidMagic", path: write("bad.png", []byte{0x00, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}), wantErr: "not a valid PNG"},
		{name: "TooShort", path: write("short.png", []byte{0x89, 'P', 'N', 'G'}), wantErr: "not a valid PNG"},
		{name: "Empty", path: write("empty.png", nil), wantErr: "empty"},
		{name: "Missing", path: filepath.Join(dir, "nope.png"), wantErr: "failed to read file"},
		{name: "Stdin", path: "-", stdin: pngHeader},
		{name: "TooLarge", path: "-", stdin: append(append([]byte{}, pngHeader...), make([]byte, maxFileSize)...), wantErr: "exceeds maximum size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readImage(tt.path, bytes.NewReader(tt.stdin))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("readImage() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("readImage() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"screen-reader-cli", "-file", "a.png", "-json", "-model=gpt-4o", "-v"})
	want := []string{"screen-reader-cli", "--file", "a.png", "--json", "--model=gpt-4o", "-v"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func setupBackend(t *testing.T, reply string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-cli-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("SCREEN_READER_LLM", "")
	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MODEL", "")
	t.Setenv("COPY_TO_CLIPBOARD", "false")
}

func writeKey(t *testing.T, key string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(p, []byte(key+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return p
}

func TestRunPlainText(t *testing.T) {
	setupBackend(t, "A terminal window.")
	keyPath := writeKey(t, "sk-cli-test")

	var stdout, stderr bytes.Buffer
	err := runWithArgs([]string{"screen-reader-cli", "--file", "-", "--api-key-path", keyPath}, bytes.NewReader(pngHeader), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stdout.String() != "A terminal window.\n" {
		t.Errorf("Expected reply on stdout, got %q", stdout.String())
	}
	if stderr.Len() != 0 {
		t.Errorf("Expected empty stderr without -v, got %q", stderr.String())
	}
}

func TestRunJSONAndVerbose(t *testing.T) {
	setupBackend(t, "A login form.")
	keyPath := writeKey(t, "sk-cli-test")

	var stdout, stderr bytes.Buffer
	err := runWithArgs([]string{"screen-reader-cli", "--file", "-", "--json", "-v", "--api-key-path", keyPath, "--model", "gpt-4-turbo"}, bytes.NewReader(pngHeader), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var result QueryResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if result.Text != "A login form." || result.Source != "-" || result.Model != "gpt-4-turbo" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.CharCount != len("A login form.") {
		t.Errorf("Expected character_count=%d, got %d", len("A login form."), result.CharCount)
	}
	if strings.Contains(stdout.String(), "[verbose]") {
		t.Error("Found [verbose] in stdout - should only be in stderr")
	}
	if !strings.Contains(stderr.String(), "[verbose]") {
		t.Error("Expected [verbose] logs in stderr with -v flag")
	}
}

func TestRunSurfacesBackendError(t *testing.T) {
	setupBackend(t, "unused")
	keyPath := writeKey(t, "sk-wrong")

	var stdout, stderr bytes.Buffer
	err := runWithArgs([]string{"screen-reader-cli", "--file", "-", "--api-key-path", keyPath}, bytes.NewReader(pngHeader), &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "Incorrect API key provided") {
		t.Fatalf("Expected backend error, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-wrong") {
		t.Error("API key leaked into error message")
	}
	if stdout.Len() != 0 {
		t.Errorf("Expected empty stdout on error, got %q", stdout.String())
	}
}

func TestRunRequiresFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := runWithArgs([]string{"screen-reader-cli"}, bytes.NewReader(nil), &stdout, &stderr); err == nil {
		t.Fatal("Expected error when --file is missing")
	}
}
