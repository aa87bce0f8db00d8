package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/describe-it/shield/internal/config"
	"github.com/describe-it/shield/internal/keyvault"
)

const minimalConfig = `upstreams:
  - name: openai
    url: http://localhost:9000
routes:
  - name: descriptions
    prefix: /api/descriptions
    upstream: openai
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shield.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"--help"}); code != 0 {
		t.Errorf("expected exit code 0 for --help, got %d", code)
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Errorf("expected exit code 0 for --version, got %d", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"nonexistent"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown command, got %d", code)
	}
}

func TestRunValidateNoConfig(t *testing.T) {
	if code := run([]string{"--config", "nonexistent.yaml", "validate"}); code != 1 {
		t.Errorf("expected exit code 1 for missing config, got %d", code)
	}
}

func TestRunValidateWithConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	if code := run([]string{"--config", path, "validate"}); code != 0 {
		t.Errorf("expected exit code 0 for valid config, got %d", code)
	}
}

func TestRunValidateRejectsBrokenConfig(t *testing.T) {
	path := writeTempConfig(t, `routes:
  - name: orphan
    prefix: /api/orphan
    upstream: missing
`)
	if code := run([]string{"--config", path, "validate"}); code != 1 {
		t.Errorf("expected exit code 1 for broken config, got %d", code)
	}
}

func TestRunInitProfiles(t *testing.T) {
	for _, profile := range []string{"dev", "prod"} {
		t.Run(profile, func(t *testing.T) {
			origDir, err := os.Getwd()
			if err != nil {
				t.Fatal(err)
			}
			tmpDir := t.TempDir()
			defer os.Chdir(origDir)
			os.Chdir(tmpDir)

			if code := run([]string{"init", "--profile", profile}); code != 0 {
				t.Fatalf("expected exit code 0 for init --profile %s", profile)
			}

			// The generated file must itself pass validation.
			if _, err := config.Load("shield.yaml"); err != nil {
				t.Errorf("generated %s profile does not validate: %v", profile, err)
			}
		})
	}
}

func TestRunInitInvalidProfile(t *testing.T) {
	if code := run([]string{"init", "--profile", "staging"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown profile, got %d", code)
	}
}

func TestGenKeyProducesUsableMasterKey(t *testing.T) {
	var out bytes.Buffer
	if code := cmdGenKey(&out); code != 0 {
		t.Fatal("genkey failed")
	}
	t.Setenv(keyvault.MasterKeyEnv, strings.TrimSpace(out.String()))
	if _, err := keyvault.FromEnv(); err != nil {
		t.Errorf("generated key not accepted: %v", err)
	}
}

func TestSealKeyRoundTrip(t *testing.T) {
	masterKey, err := keyvault.GenerateMasterKey()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(keyvault.MasterKeyEnv, masterKey)

	var out bytes.Buffer
	if code := cmdSealKey(&out, strings.NewReader(""), []string{"sk-secret"}); code != 0 {
		t.Fatal("seal-key failed")
	}

	vault, err := keyvault.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	opened, err := vault.Open(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("opening sealed output: %v", err)
	}
	if opened != "sk-secret" {
		t.Errorf("opened = %q, want sk-secret", opened)
	}
}

func TestSealKeyReadsStdin(t *testing.T) {
	masterKey, err := keyvault.GenerateMasterKey()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(keyvault.MasterKeyEnv, masterKey)

	var out bytes.Buffer
	if code := cmdSealKey(&out, strings.NewReader("sk-from-stdin\n"), nil); code != 0 {
		t.Fatal("seal-key from stdin failed")
	}
	if out.Len() == 0 {
		t.Error("no sealed output")
	}
}

func TestSealKeyWithoutMasterKey(t *testing.T) {
	t.Setenv(keyvault.MasterKeyEnv, "")
	var out bytes.Buffer
	if code := cmdSealKey(&out, strings.NewReader(""), []string{"sk-secret"}); code != 1 {
		t.Error("expected exit code 1 without master key")
	}
}

func TestServeBadConfig(t *testing.T) {
	if code := cmdServe("nonexistent.yaml", defaultServerFactory); code != 1 {
		t.Error("expected exit code 1 for missing config")
	}
}

func TestServeFactoryError(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	failing := func(cfg *config.Config, configPath, version string) (startable, error) {
		return nil, errors.New("boom")
	}
	if code := cmdServe(path, failing); code != 1 {
		t.Error("expected exit code 1 when server construction fails")
	}
}

// stubServer records that Start was called and returns immediately.
type stubServer struct{ started bool }

func (s *stubServer) Start(ctx context.Context) error {
	s.started = true
	return nil
}

func TestServeStartsServer(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	stub := &stubServer{}
	factory := func(cfg *config.Config, configPath, version string) (startable, error) {
		return stub, nil
	}
	if code := cmdServe(path, factory); code != 0 {
		t.Fatal("expected exit code 0")
	}
	if !stub.started {
		t.Error("server was never started")
	}
}
