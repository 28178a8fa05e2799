package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exambank/internal/auth"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	cfg := "database:\n  driver: sqlite\n  path: " + dir + "\n  name: test\njwt_secret: cli-test-secret\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "--config", cfg, "token", "--subject", "ops", "--role", "ingest")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), "cli-test-secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("expected subject ops, got %q", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != auth.RoleIngest {
		t.Fatalf("expected [ingest] roles, got %v", claims.Roles)
	}
}

func TestResetCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "n\n", "--config", cfg, "reset")
	if err != nil {
		t.Fatalf("declined reset: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Fatalf("expected abort message, got %q", out)
	}

	out, err = run(t, "y\n", "--config", cfg, "reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Recreated ") {
		t.Fatalf("expected recreated tables, got %q", out)
	}
}

func TestExportCommand(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, "y\n", "--config", cfg, "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "bank.xlsx")
	if _, err := run(t, "", "--config", cfg, "export", "-o", dest); err != nil {
		t.Fatalf("export: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat export: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected a non-empty workbook")
	}
}

func TestIngestRequiresLLMKey(t *testing.T) {
	cfg := writeConfig(t)
	t.Setenv("EXAMBANK_LLM_API_KEY", "")
	_, err := run(t, "", "--config", cfg, "ingest", "exam.pdf")
	if err == nil || !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}
