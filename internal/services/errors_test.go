package services_test

import (
	"errors"
	"strings"
	"testing"

	"capstan/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrEngine, "scheduler", "start transfer", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrEngine) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"scheduler", "start transfer", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "importer", "move staging", "", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestDetailsFlattensWrap(t *testing.T) {
	base := errors.New("no route to tracker")
	err := services.Wrap(services.ErrEngine, "engine", "fetch metadata", "metadata timed out", base)

	details := services.Details(err)
	if details.Kind != "engine" {
		t.Fatalf("unexpected kind: %q", details.Kind)
	}
	if details.Component != "engine" || details.Operation != "fetch metadata" {
		t.Fatalf("unexpected component/operation: %q %q", details.Component, details.Operation)
	}
	if details.Message != "metadata timed out" {
		t.Fatalf("unexpected message: %q", details.Message)
	}
	if details.Cause != "no route to tracker" {
		t.Fatalf("unexpected cause: %q", details.Cause)
	}
	if details.Hint == "" {
		t.Fatal("expected a hint for engine errors")
	}
}

func TestDetailsUnknownError(t *testing.T) {
	details := services.Details(errors.New("plain"))
	if details.Kind != "unknown" {
		t.Fatalf("unexpected kind: %q", details.Kind)
	}
	if details.Message != "plain" {
		t.Fatalf("unexpected message: %q", details.Message)
	}
}

func TestDetailsNil(t *testing.T) {
	if details := services.Details(nil); details.Kind != "" || details.Message != "" {
		t.Fatalf("expected zero details, got %+v", details)
	}
}
