package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

func TestOpenSQLite_CreatesAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := OpenSQLite(path, false)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// All tables usable after migration.
	if _, err := CreateReview(context.Background(), db, &domain.Review{
		Title: "t", Author: "a", Content: "c", Rating: 3, Category: "general", Date: "2026-09-01",
	}); err != nil {
		t.Fatalf("write after migrate: %v", err)
	}
	if n, err := CountReviews(context.Background(), db); err != nil || n != 1 {
		t.Fatalf("count after migrate = %d, %v", n, err)
	}
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "app.db")
	if _, err := OpenSQLite(path, false); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}
