package main

import (
	"encoding/json"
	"strings"
	"testing"

	"capstan/internal/records"
)

const (
	magnetAlpha = "magnet:?xt=urn:btih:00aa11bb22cc&dn=alpha+report"
	urlBeta     = "https://mirror.example/beta-archive.torrent"
)

func TestAddAndListCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out := runCLI(t, env, "add", magnetAlpha)
	requireContains(t, out, "Queued download #1 (Alpha Report)")

	out = runCLI(t, env, "add", urlBeta)
	requireContains(t, out, "Queued download #2 (Beta Archive)")

	out = runCLI(t, env, "list")
	requireContains(t, out, "Alpha Report")
	requireContains(t, out, "Beta Archive")
	requireContains(t, out, "Queued")

	out = runCLI(t, env, "list", "--status", "failed")
	requireContains(t, out, "No downloads")
}

func TestListJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "--json", "list")
	var payload struct {
		Downloads []map[string]any `json:"downloads"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if len(payload.Downloads) != 1 {
		t.Fatalf("expected 1 download, got %d", len(payload.Downloads))
	}
	entry := payload.Downloads[0]
	if entry["id"] != float64(1) {
		t.Fatalf("expected id 1, got %v", entry["id"])
	}
	if entry["status"] != string(records.StatusQueued) {
		t.Fatalf("expected queued status, got %v", entry["status"])
	}
	if entry["display_name"] != "Alpha Report" {
		t.Fatalf("expected display name, got %v", entry["display_name"])
	}
}

func TestShowCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "show", "1")
	requireContains(t, out, "Download #1")
	requireContains(t, out, "Alpha Report")
	requireContains(t, out, "Queued")
	requireContains(t, out, magnetAlpha)
	requireContains(t, out, env.cfg.Paths.StagingDir)

	if _, err := runCLIWithError(t, env, "show", "9999"); err == nil || !strings.Contains(err.Error(), "download 9999 not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestShowCommandRejectsBadID(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLIWithError(t, env, "show", "abc"); err == nil || !strings.Contains(err.Error(), "invalid download id") {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestPauseAndResumeCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "pause", "1")
	requireContains(t, out, "Download 1:")
	requireContains(t, out, "only active downloads pause")

	if _, err := env.store.Activate(1, records.StartInfo{}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	out = runCLI(t, env, "pause", "1")
	requireContains(t, out, "Download 1 paused")

	record, err := env.store.Get(1)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != records.StatusPaused {
		t.Fatalf("expected paused, got %s", record.Status)
	}

	out = runCLI(t, env, "resume", "1")
	requireContains(t, out, "Download 1 resumed")

	record, err = env.store.Get(1)
	if err != nil {
		t.Fatalf("get record after resume: %v", err)
	}
	if record.Status != records.StatusActive {
		t.Fatalf("expected active, got %s", record.Status)
	}
}

func TestCancelCommandArchivesOutcome(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "cancel", "1")
	requireContains(t, out, "Download 1 cancelled")

	out = runCLI(t, env, "list")
	requireContains(t, out, "No downloads")

	out = runCLI(t, env, "history")
	requireContains(t, out, "Alpha Report")
	requireContains(t, out, "Cancelled")

	out = runCLI(t, env, "cancel", "1")
	requireContains(t, out, "Download 1 not found")
}

func TestImportCommandRequiresCompleted(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "import", "1")
	requireContains(t, out, "Download 1 is not completed (status Queued)")

	if _, err := env.store.Activate(1, records.StartInfo{}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := env.store.UpdateStatus(1, records.StatusCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	out = runCLI(t, env, "import", "1")
	requireContains(t, out, "Download 1 queued for import")

	out = runCLI(t, env, "import", "42")
	requireContains(t, out, "Download 42 not found")
}

func TestAddMultipleSources(t *testing.T) {
	env := setupCLITestEnv(t)

	out := runCLI(t, env, "add", magnetAlpha, urlBeta)
	requireContains(t, out, "Queued download #1")
	requireContains(t, out, "Queued download #2")

	list := env.store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	for i, record := range list {
		if record.Status != records.StatusQueued {
			t.Fatalf("record %d: expected queued, got %s", i, record.Status)
		}
	}
}

func TestListStatusFilter(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)
	runCLI(t, env, "add", urlBeta)
	if _, err := env.store.Activate(2, records.StartInfo{}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	out := runCLI(t, env, "list", "--status", "active")
	requireContains(t, out, "Beta Archive")
	if strings.Contains(out, "Alpha Report") {
		t.Fatalf("queued record leaked into active filter:\n%s", out)
	}

	out = runCLI(t, env, "list", "-s", "queued", "-s", "active")
	requireContains(t, out, "Alpha Report")
	requireContains(t, out, "Beta Archive")
}

func TestCancelJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "--json", "cancel", "1", "7")
	var payload struct {
		Cancelled int `json:"cancelled"`
		Items     []struct {
			ID      int64  `json:"id"`
			Outcome string `json:"outcome"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if payload.Cancelled != 1 {
		t.Fatalf("expected 1 cancelled, got %d", payload.Cancelled)
	}
	if len(payload.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(payload.Items))
	}
	if payload.Items[0].Outcome != "cancelled" || payload.Items[1].Outcome != "not_found" {
		t.Fatalf("unexpected outcomes: %+v", payload.Items)
	}
}

func TestPauseRejectsBadID(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, arg := range []string{"abc", "0", "-3"} {
		if _, err := runCLIWithError(t, env, "pause", arg); err == nil || !strings.Contains(err.Error(), "invalid download id") {
			t.Fatalf("pause %q: expected invalid id error, got %v", arg, err)
		}
	}
}

func TestShowCompletedDownloadDetail(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)
	if _, err := env.store.Activate(1, records.StartInfo{Name: "Alpha Report", TotalBytes: 1 << 20, Fingerprint: "fp-alpha"}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := env.store.UpdateStatus(1, records.StatusCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	out := runCLI(t, env, "show", "1")
	requireContains(t, out, "Completed")
	requireContains(t, out, "Fingerprint:")
	requireContains(t, out, "fp-alpha")
	requireContains(t, out, "1.0 MiB")
}
