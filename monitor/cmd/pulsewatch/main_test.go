package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obsidianstack/pulsewatch/monitor/internal/journal"
	"github.com/obsidianstack/pulsewatch/monitor/internal/records"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// execute runs the root command with args against a config rooted in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "monitor:\n  data_dir: " + filepath.Join(dir, "data") + "\n  logs_dir: " + filepath.Join(dir, "logs") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	listCompressed = false
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLogsListAndShow(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.New(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	ctx := context.Background()
	for _, line := range []string{`{"n":1}`, `{"n":2}`} {
		if err := j.Append(ctx, "c1", line); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := j.Rotate(ctx, "c1", "c1-1"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	out, err := execute(t, dir, "logs", "list")
	if err != nil {
		t.Fatalf("logs list: %v", err)
	}
	if strings.TrimSpace(out) != "c1" {
		t.Errorf("logs list: got %q, want %q", out, "c1")
	}

	out, err = execute(t, dir, "logs", "list", "--compressed")
	if err != nil {
		t.Fatalf("logs list --compressed: %v", err)
	}
	if got := strings.Fields(out); len(got) != 2 || got[1] != "c1-1" {
		t.Errorf("logs list --compressed: got %q", out)
	}

	out, err = execute(t, dir, "logs", "show", "c1-1")
	if err != nil {
		t.Fatalf("logs show: %v", err)
	}
	if out != "{\"n\":1}\n{\"n\":2}\n" {
		t.Errorf("logs show: got %q", out)
	}

	if _, err := execute(t, dir, "logs", "show", "missing"); err == nil {
		t.Error("logs show missing: expected error")
	}
}

func TestChecksValidate(t *testing.T) {
	dir := t.TempDir()
	store, err := records.New(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("records.New: %v", err)
	}
	ctx := context.Background()
	good := types.Check{
		ID: "good", UserPhone: "5551234567", Protocol: "https", URL: "example.com",
		Method: "GET", SuccessCodes: []int{200}, TimeoutSeconds: 3, State: types.StateUnknown,
	}
	if err := store.Create(ctx, types.NamespaceChecks, "good", good); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := execute(t, dir, "checks", "validate")
	if err != nil {
		t.Fatalf("checks validate: %v (%s)", err, out)
	}
	if !strings.Contains(out, "1 checked, 0 invalid") {
		t.Errorf("summary: got %q", out)
	}

	bad := map[string]any{"id": "bad", "userPhone": "5551234567", "protocol": "ftp"}
	if err := store.Create(ctx, types.NamespaceChecks, "bad", bad); err != nil {
		t.Fatalf("create bad: %v", err)
	}
	out, err = execute(t, dir, "checks", "validate")
	if err == nil {
		t.Fatal("expected an error for an invalid check")
	}
	if !strings.Contains(out, "INVALID bad") || !strings.Contains(out, "protocol") {
		t.Errorf("report: got %q", out)
	}
}

func TestChecksValidate_Files(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "check.json")
	doc := `{"id":"f","userPhone":"5551234567","protocol":"http","url":"x.test","method":"POST","successCodes":[201],"timeoutSeconds":2}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := execute(t, dir, "checks", "validate", path)
	if err != nil {
		t.Fatalf("validate file: %v (%s)", err, out)
	}
	if !strings.Contains(out, "ok") || !strings.Contains(out, "http://x.test") {
		t.Errorf("report: got %q", out)
	}
}
