package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

func newIdempotencyDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("idem_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.AutoMigrate(&domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestIdempotency_CreateThenGet(t *testing.T) {
	db := newIdempotencyDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "/rooms/:id/messages:r1", "k1", "msg-1", http.StatusCreated, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.ExpiresAt.Before(rec.CreatedAt) {
		t.Fatalf("record fields wrong: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "/rooms/:id/messages:r1", "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.ResultID != "msg-1" || got.Status != http.StatusCreated {
		t.Fatalf("stored record wrong: %+v", got)
	}
}

func TestIdempotency_DuplicateTuple(t *testing.T) {
	db := newIdempotencyDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "scope", "k1", "r1", 201, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "scope", "k1", "r2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate err = %v", err)
	}

	// Same key under another user or scope is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "u2", "scope", "k1", "r3", 201, time.Hour); err != nil {
		t.Fatalf("other user create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "other-scope", "k1", "r4", 201, time.Hour); err != nil {
		t.Fatalf("other scope create: %v", err)
	}
}

func TestIdempotency_ExpiryAndEmptyScope(t *testing.T) {
	db := newIdempotencyDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "scope", "k1", "r1", 201, -time.Minute); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "scope", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired lookup err = %v", err)
	}

	if _, err := GetIdempotency(ctx, db, "u1", "  ", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope err = %v", err)
	}
}
