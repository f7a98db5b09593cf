package main

import (
	"encoding/json"
	"testing"
)

func TestHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "health")
	requireContains(t, out, "== Configuration ==")
	requireContains(t, out, "Staging directory:")
	requireContains(t, out, "read/write ok")
	requireContains(t, out, "Catalog rescan:")
	requireContains(t, out, "Disabled")
	requireContains(t, out, "Notifications:")
	requireContains(t, out, "== Stores ==")
	requireContains(t, out, "Snapshot:")
	requireContains(t, out, "1 records")
	requireContains(t, out, "History:")
	requireContains(t, out, "0 entries")
}

func TestHealthJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	runCLI(t, env, "add", magnetAlpha)

	out := runCLI(t, env, "--json", "health")
	var payload struct {
		Checks []struct {
			Name   string `json:"name"`
			Passed bool   `json:"passed"`
			Detail string `json:"detail"`
		} `json:"checks"`
		Snapshot struct {
			Exists      bool `json:"exists"`
			Readable    bool `json:"readable"`
			RecordCount int  `json:"record_count"`
		} `json:"snapshot"`
		History struct {
			DatabaseExists bool  `json:"database_exists"`
			TableExists    bool  `json:"table_exists"`
			TotalEntries   int64 `json:"total_entries"`
			IntegrityCheck bool  `json:"integrity_check"`
		} `json:"history"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if len(payload.Checks) != 5 {
		t.Fatalf("expected 5 config checks, got %d", len(payload.Checks))
	}
	for _, check := range payload.Checks {
		if !check.Passed {
			t.Fatalf("check %q failed: %s", check.Name, check.Detail)
		}
	}
	if !payload.Snapshot.Exists || !payload.Snapshot.Readable || payload.Snapshot.RecordCount != 1 {
		t.Fatalf("unexpected snapshot health: %+v", payload.Snapshot)
	}
	if !payload.History.DatabaseExists || !payload.History.TableExists || !payload.History.IntegrityCheck {
		t.Fatalf("unexpected history health: %+v", payload.History)
	}
	if payload.History.TotalEntries != 0 {
		t.Fatalf("expected empty history, got %d entries", payload.History.TotalEntries)
	}
}

func TestHealthWithoutDaemon(t *testing.T) {
	env := setupOfflineEnv(t)

	out := runCLI(t, env, "health")
	requireContains(t, out, "== Stores ==")
	requireContains(t, out, "Not created yet")
	requireContains(t, out, "0 entries")
}
