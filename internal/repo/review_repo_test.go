package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

func newReviewRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("review_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedReview(t *testing.T, db *gorm.DB, title string, createdAt time.Time) *domain.Review {
	t.Helper()
	r, err := CreateReview(context.Background(), db, &domain.Review{
		Title:     title,
		Author:    "jane",
		Content:   "body of " + title,
		Rating:    4,
		Category:  "general",
		Date:      createdAt.Format("2006-01-02"),
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("seed review %q: %v", title, err)
	}
	return r
}

func TestCreateReview_SetsIDAndTimestamps(t *testing.T) {
	db := newReviewRepoDB(t, &domain.Review{})

	start := time.Now().UTC().Add(-time.Minute)
	r, err := CreateReview(context.Background(), db, &domain.Review{
		Title: "t", Author: "a", Content: "c", Rating: 5, Category: "general", Date: "2026-09-01",
	})
	if err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	if r.ID == "" {
		t.Fatalf("expected generated ID")
	}
	if r.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt not set: %v", r.CreatedAt)
	}

	got, err := GetReview(context.Background(), db, r.ID)
	if err != nil {
		t.Fatalf("GetReview: %v", err)
	}
	if got.Title != "t" || got.Rating != 5 {
		t.Fatalf("persisted fields wrong: %+v", got)
	}
}

func TestCreateReview_Error_NoTable(t *testing.T) {
	db := newReviewRepoDB(t /* no migrations */)
	if _, err := CreateReview(context.Background(), db, &domain.Review{Title: "t"}); err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestListReviewsPage_OrderAndCommentCounts(t *testing.T) {
	db := newReviewRepoDB(t, &domain.Review{}, &domain.Comment{})

	base := time.Now().UTC().Add(-time.Hour)
	oldest := seedReview(t, db, "oldest", base)
	middle := seedReview(t, db, "middle", base.Add(time.Minute))
	newest := seedReview(t, db, "newest", base.Add(2*time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := CreateComment(context.Background(), db, &domain.Comment{
			ReviewID: middle.ID, Author: "bob", Content: fmt.Sprintf("c%d", i),
		}); err != nil {
			t.Fatalf("CreateComment: %v", err)
		}
	}

	page, err := ListReviewsPage(context.Background(), db, 0, 2)
	if err != nil {
		t.Fatalf("ListReviewsPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != newest.ID || page[1].ID != middle.ID {
		t.Fatalf("page order wrong: %+v", page)
	}
	if page[0].CommentsCount != 0 || page[1].CommentsCount != 2 {
		t.Fatalf("comment counts wrong: %d %d", page[0].CommentsCount, page[1].CommentsCount)
	}

	rest, err := ListReviewsPage(context.Background(), db, 2, 2)
	if err != nil {
		t.Fatalf("ListReviewsPage offset: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != oldest.ID {
		t.Fatalf("second page wrong: %+v", rest)
	}

	total, err := CountReviews(context.Background(), db)
	if err != nil || total != 3 {
		t.Fatalf("CountReviews = %d, %v", total, err)
	}
}

func TestGetReview_NotFound(t *testing.T) {
	db := newReviewRepoDB(t, &domain.Review{})
	if _, err := GetReview(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdateReview_PatchAndMissing(t *testing.T) {
	db := newReviewRepoDB(t, &domain.Review{})
	r := seedReview(t, db, "before", time.Now().UTC())

	err := UpdateReview(context.Background(), db, r.ID, map[string]any{
		"title":  "after",
		"rating": 2,
	})
	if err != nil {
		t.Fatalf("UpdateReview: %v", err)
	}
	got, _ := GetReview(context.Background(), db, r.ID)
	if got.Title != "after" || got.Rating != 2 || got.Content != r.Content {
		t.Fatalf("patch applied wrong: %+v", got)
	}

	if err := UpdateReview(context.Background(), db, "missing", map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing update err = %v", err)
	}
}

func TestDeleteReview_RowsAffected(t *testing.T) {
	db := newReviewRepoDB(t, &domain.Review{})
	r := seedReview(t, db, "doomed", time.Now().UTC())

	rows, err := DeleteReview(context.Background(), db, r.ID)
	if err != nil || rows != 1 {
		t.Fatalf("DeleteReview: rows=%d err=%v", rows, err)
	}
	rows, err = DeleteReview(context.Background(), db, r.ID)
	if err != nil || rows != 0 {
		t.Fatalf("repeat DeleteReview: rows=%d err=%v", rows, err)
	}
	if _, err := GetReview(context.Background(), db, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted review still readable: %v", err)
	}
}

func TestComments_CRUDAndCascadeHelpers(t *testing.T) {
	db := newReviewRepoDB(t, &domain.Review{}, &domain.Comment{})
	r := seedReview(t, db, "parent", time.Now().UTC())

	first, err := CreateComment(context.Background(), db, &domain.Comment{
		ReviewID: r.ID, Author: "bob", Content: "first",
	})
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := CreateComment(context.Background(), db, &domain.Comment{
		ReviewID: r.ID, Author: "bob", Content: "second",
	}); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	list, err := ListComments(context.Background(), db, r.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(list) != 2 || list[0].Content != "first" {
		t.Fatalf("comments order wrong: %+v", list)
	}

	n, err := CountComments(context.Background(), db, r.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountComments = %d, %v", n, err)
	}

	got, err := GetComment(context.Background(), db, first.ID)
	if err != nil || got.Content != "first" {
		t.Fatalf("GetComment: %+v, %v", got, err)
	}

	rows, err := DeleteComment(context.Background(), db, first.ID)
	if err != nil || rows != 1 {
		t.Fatalf("DeleteComment: rows=%d err=%v", rows, err)
	}

	rows, err = DeleteCommentsForReview(context.Background(), db, r.ID)
	if err != nil || rows != 1 {
		t.Fatalf("DeleteCommentsForReview: rows=%d err=%v", rows, err)
	}
	if n, _ := CountComments(context.Background(), db, r.ID); n != 0 {
		t.Fatalf("comments left after purge: %d", n)
	}
}
