package services_test

import (
	"context"
	"testing"

	"capstan/internal/services"
)

func TestContextRoundTripsIdentity(t *testing.T) {
	ctx := services.WithRequestID(
		services.WithStage(
			services.WithRecordID(context.Background(), 42),
			"transfer"),
		"req-123")

	id, ok := services.RecordIDFromContext(ctx)
	if !ok || id != 42 {
		t.Fatalf("RecordIDFromContext = %d, %v; want 42, true", id, ok)
	}
	stage, ok := services.StageFromContext(ctx)
	if !ok || stage != "transfer" {
		t.Fatalf("StageFromContext = %q, %v; want transfer, true", stage, ok)
	}
	rid, ok := services.RequestIDFromContext(ctx)
	if !ok || rid != "req-123" {
		t.Fatalf("RequestIDFromContext = %q, %v; want req-123, true", rid, ok)
	}
}

func TestBlankValuesAreNotStored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("blank stage should not be stored")
	}
	ctx = services.WithRequestID(ctx, "")
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("blank request id should not be stored")
	}
}

func TestMissingRecordID(t *testing.T) {
	if id, ok := services.RecordIDFromContext(context.Background()); ok || id != 0 {
		t.Fatalf("RecordIDFromContext on empty context = %d, %v", id, ok)
	}
}
