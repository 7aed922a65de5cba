package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bananabot/pricing/internal/crypto"
	"github.com/bananabot/pricing/internal/domain"
)

func TestInMemoryCallerRepository_DefaultCaller(t *testing.T) {
	repo := NewInMemoryCallerRepository()
	ctx := context.Background()

	caller, err := repo.GetByAPIKey(ctx, "pr-default-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.Role != "admin" {
		t.Errorf("expected admin role, got %q", caller.Role)
	}
}

func TestInMemoryCallerRepository_KeyRotation(t *testing.T) {
	repo := NewInMemoryCallerRepository()
	ctx := context.Background()

	repo.Create(ctx, &domain.Caller{
		ID:           "bot-1",
		Name:         "bot-1",
		APIKeyHash:   crypto.HashAPIKey("pr-old-key"),
		Role:         "bot",
		RateLimitRPM: 60,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})

	caller, err := repo.GetByID(ctx, "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	caller.APIKeyHash = crypto.HashAPIKey("pr-new-key")
	if err := repo.Update(ctx, caller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.GetByAPIKey(ctx, "pr-new-key"); err != nil {
		t.Errorf("new key should resolve the caller: %v", err)
	}
	if _, err := repo.GetByAPIKey(ctx, "pr-old-key"); err != domain.ErrCallerNotFound {
		t.Errorf("expected ErrCallerNotFound for old key, got %v", err)
	}
}

func TestInMemoryCallerRepository_GetReturnsCopy(t *testing.T) {
	repo := NewInMemoryCallerRepository()
	ctx := context.Background()

	caller, err := repo.GetByID(ctx, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	caller.Enabled = false

	stored, err := repo.GetByAPIKey(ctx, "pr-default-key")
	if err != nil {
		t.Fatalf("mutation leaked into stored record: %v", err)
	}
	if !stored.Enabled {
		t.Error("stored caller should remain enabled until Update is called")
	}
}

func TestInMemoryCallerRepository_Disable(t *testing.T) {
	repo := NewInMemoryCallerRepository()
	ctx := context.Background()

	caller, err := repo.GetByID(ctx, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	caller.Enabled = false
	if err := repo.Update(ctx, caller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.GetByAPIKey(ctx, "pr-default-key"); err != domain.ErrCallerNotFound {
		t.Errorf("expected ErrCallerNotFound for disabled caller, got %v", err)
	}
}

func TestInMemoryCallerRepository_UpdateUnknown(t *testing.T) {
	repo := NewInMemoryCallerRepository()
	ctx := context.Background()

	err := repo.Update(ctx, &domain.Caller{ID: "missing"})
	if err != domain.ErrCallerNotFound {
		t.Errorf("expected ErrCallerNotFound, got %v", err)
	}
}
