package main

import (
	"context"
	"encoding/json"
	"testing"

	"capstan/internal/records"
)

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "status")
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Workflow:")
	requireContains(t, out, "Stopped")
	requireContains(t, out, "== Components ==")
	requireContains(t, out, "records:")
	requireContains(t, out, "history:")
	requireContains(t, out, "Ready")
	requireContains(t, out, "== Downloads ==")
	requireContains(t, out, "Queued")
	requireContains(t, out, "Total")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "--json", "status")
	var payload struct {
		Running    bool           `json:"running"`
		Stats      map[string]int `json:"stats"`
		Components []struct {
			Name  string `json:"name"`
			Ready bool   `json:"ready"`
		} `json:"components"`
		SnapshotPath string `json:"snapshot_path"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if payload.Running {
		t.Fatal("workflow should not report running")
	}
	if payload.Stats["total"] != 1 || payload.Stats[string(records.StatusQueued)] != 1 {
		t.Fatalf("unexpected stats: %v", payload.Stats)
	}
	if len(payload.Components) < 2 {
		t.Fatalf("expected records and history components, got %v", payload.Components)
	}
	if payload.SnapshotPath == "" {
		t.Fatal("snapshot path missing")
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupOfflineEnv(t)

	store, err := records.Open(env.cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	if _, err := store.Create(context.Background(), magnetAlpha, "", ""); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	out := runCLI(t, env, "status")
	requireContains(t, out, "Stopped")
	requireContains(t, out, "Queued")
	requireContains(t, out, "Total")
	requireContains(t, out, "Snapshot:")
}
