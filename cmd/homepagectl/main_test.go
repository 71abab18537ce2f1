package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentworkforce/homepage/internal/httpapi"
	"github.com/agentworkforce/homepage/internal/store"
)

func newTestBackend(t *testing.T) (*store.Store, string) {
	t.Helper()
	st, err := store.New(store.Options{})
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	ts := httptest.NewServer(httpapi.NewServer(st))
	t.Cleanup(func() {
		ts.Close()
		_ = st.Close()
	})
	return st, ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGetDefaultsWithoutStore(t *testing.T) {
	out, err := runCLI(t, "get", "hero", "--defaults", "--base-url", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("get --defaults failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if doc["registrationDeadline"] != "2025-03-15T23:59:00Z" {
		t.Fatalf("expected ISO deadline, got %v", doc["registrationDeadline"])
	}
}

func TestGetUsesTimezoneForNaiveValues(t *testing.T) {
	out, err := runCLI(t, "get", "hero", "--defaults", "--timezone", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, `"2025-03-15T23:59:00+05:30"`) {
		t.Fatalf("expected deadline anchored in Asia/Kolkata, got %s", out)
	}
	if _, err := runCLI(t, "get", "hero", "--defaults", "--timezone", "Mars/Olympus"); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestSaveYAMLAndGet(t *testing.T) {
	st, baseURL := newTestBackend(t)
	path := filepath.Join(t.TempDir(), "hero.yaml")
	doc := `headline: From YAML
seatsLeft: 42
registrationDeadline: "2025-04-01T18:30:00Z"
cta:
  primary:
    label: Join
    href: /join
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	out, err := runCLI(t, "save", "hero", "--file", path, "--base-url", baseURL)
	if err != nil {
		t.Fatalf("save failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"success": true`) {
		t.Fatalf("expected success result, got %s", out)
	}

	rec, err := st.GetSection("hero")
	if err != nil {
		t.Fatalf("expected stored hero: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(rec.Content, &stored); err != nil {
		t.Fatalf("decode stored: %v", err)
	}
	if stored["registrationDeadline"] != "2025-04-01 18:30:00" || stored["seatsLeft"] != float64(42) {
		t.Fatalf("unexpected stored document %+v", stored)
	}

	out, err = runCLI(t, "get", "hero", "--base-url", baseURL)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, `"headline": "From YAML"`) {
		t.Fatalf("expected saved headline, got %s", out)
	}
}

func TestSaveRejectsInvalidDocument(t *testing.T) {
	st, baseURL := newTestBackend(t)
	path := filepath.Join(t.TempDir(), "hero.json")
	if err := os.WriteFile(path, []byte(`{"headline":"No CTA"}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	out, err := runCLI(t, "save", "hero", "-f", path, "--base-url", baseURL)
	if err == nil || !strings.Contains(err.Error(), "save rejected") {
		t.Fatalf("expected validation error, got %v\n%s", err, out)
	}
	if _, err := st.GetSection("hero"); err == nil {
		t.Fatalf("rejected document must not reach the store")
	}
	if _, err := runCLI(t, "save", "hero", "--base-url", baseURL); err == nil {
		t.Fatalf("expected error without --file")
	}
}

func TestReadDocumentFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("headline: Plain"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readDocument(nil, path, ""); err == nil {
		t.Fatalf("expected json decode error for yaml content without format")
	}
	doc, err := readDocument(nil, path, "yaml")
	if err != nil || doc.String("headline") != "Plain" {
		t.Fatalf("expected yaml decode with explicit format, got %v (%v)", doc, err)
	}
	doc, err = readDocument(strings.NewReader(`{"headline":"Stdin"}`), "-", "")
	if err != nil || doc.String("headline") != "Stdin" {
		t.Fatalf("expected stdin decode, got %v (%v)", doc, err)
	}
	if _, err := readDocument(strings.NewReader(`null`), "-", "json"); err == nil {
		t.Fatalf("expected error for null document")
	}
	if _, err := readDocument(nil, path, "toml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestCountdownCommand(t *testing.T) {
	out, err := runCLI(t, "countdown", "--deadline", "2025-03-15 23:59:00", "--now", "2025-03-14T22:58:59Z")
	if err != nil {
		t.Fatalf("countdown failed: %v", err)
	}
	if strings.TrimSpace(out) != "01d 01h 00m 01s" {
		t.Fatalf("unexpected countdown %q", out)
	}

	out, err = runCLI(t, "countdown", "--deadline", "2025-03-15 23:59:00", "--now", "2025-03-16 00:00:00")
	if err != nil || strings.TrimSpace(out) != "deadline passed" {
		t.Fatalf("expected passed deadline, got %q (%v)", out, err)
	}

	out, err = runCLI(t, "countdown", "--deadline", "2025-03-15 23:59:00", "--inactive", "--closed-message", "See you next year")
	if err != nil || strings.TrimSpace(out) != "See you next year" {
		t.Fatalf("expected closed message, got %q (%v)", out, err)
	}

	if _, err := runCLI(t, "countdown", "--deadline", "soon"); err == nil {
		t.Fatalf("expected error for unreadable deadline")
	}
}

func TestTestimonialCommands(t *testing.T) {
	st, baseURL := newTestBackend(t)

	out, err := runCLI(t, "testimonials", "add", "--name", "Asha", "--quote", "Loved it", "--base-url", baseURL)
	if err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}
	var created map[string]any
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode add output: %v\n%s", err, out)
	}
	id, _ := created["id"].(string)
	if id == "" || strings.HasPrefix(id, "pending-") {
		t.Fatalf("expected server id, got %q", id)
	}

	if _, err := runCLI(t, "testimonials", "feature", id, "--base-url", baseURL); err != nil {
		t.Fatalf("feature failed: %v", err)
	}
	item, err := st.GetTestimonial(id)
	if err != nil || item["isFeatured"] != true {
		t.Fatalf("expected featured testimonial, got %+v (%v)", item, err)
	}

	out, err = runCLI(t, "testimonials", "list", "--base-url", baseURL)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Asha") {
		t.Fatalf("expected testimonial in list, got %s", out)
	}

	if _, err := runCLI(t, "testimonials", "add", "--name", "No quote", "--base-url", baseURL); err == nil {
		t.Fatalf("expected validation error for missing quote")
	}

	if _, err := runCLI(t, "testimonials", "delete", id, "--base-url", baseURL); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(st.ListTestimonials()) != 0 {
		t.Fatalf("expected testimonial to be deleted")
	}
}

func TestMirrorOnce(t *testing.T) {
	_, baseURL := newTestBackend(t)
	dir := t.TempDir()
	if _, err := runCLI(t, "mirror", "--dir", dir, "--once", "--sections", "hero,statistics", "--base-url", baseURL); err != nil {
		t.Fatalf("mirror failed: %v", err)
	}
	for _, name := range []string{"hero.json", "statistics.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to be mirrored: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "conversion.json")); !os.IsNotExist(err) {
		t.Fatalf("expected conversion to be skipped, got %v", err)
	}
	if _, err := runCLI(t, "mirror", "--once", "--base-url", baseURL); err == nil {
		t.Fatalf("expected error without --dir")
	}
}

func TestWatchPrintsUpdatesAndCountdown(t *testing.T) {
	_, baseURL := newTestBackend(t)
	out, err := runCLI(t, "watch", "hero", "--for", "300ms", "--live=false", "--base-url", baseURL)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if !strings.Contains(out, "hero updated: headline=") {
		t.Fatalf("expected update line, got %s", out)
	}
	if !strings.Contains(out, "countdown ") {
		t.Fatalf("expected countdown line, got %s", out)
	}
}
