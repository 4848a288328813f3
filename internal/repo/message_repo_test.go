package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

func newMessageRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("message_repo_test_%d.db", time.Now().UnixNano()))
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

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// seedMessages inserts n messages spaced one second apart and returns their
// IDs in chronological order.
func seedMessages(t *testing.T, db *gorm.DB, roomID string, n int) []string {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(n) * time.Second)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		m, err := CreateMessage(context.Background(), db, &domain.ChatMessage{
			RoomID:    roomID,
			Author:    "jane",
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func TestListMessages_NewestWindowAscending(t *testing.T) {
	db := newMessageRepoDB(t, &domain.ChatMessage{})
	ids := seedMessages(t, db, "room-1", 5)
	seedMessages(t, db, "room-2", 2)

	msgs, err := ListMessages(context.Background(), db, "room-1", 3)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != ids[2] || msgs[2].ID != ids[4] {
		t.Fatalf("window wrong: %+v", msgs)
	}

	all, err := ListMessages(context.Background(), db, "room-1", 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("unlimited list: len=%d err=%v", len(all), err)
	}
}

func TestListMessagesBefore_CursorPaging(t *testing.T) {
	db := newMessageRepoDB(t, &domain.ChatMessage{})
	ids := seedMessages(t, db, "room-1", 5)

	older, err := ListMessagesBefore(context.Background(), db, "room-1", ids[3], 2)
	if err != nil {
		t.Fatalf("ListMessagesBefore: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[1] || older[1].ID != ids[2] {
		t.Fatalf("cursor page wrong: %+v", older)
	}

	// Unknown cursor degrades to the newest page.
	fallback, err := ListMessagesBefore(context.Background(), db, "room-1", "missing", 2)
	if err != nil {
		t.Fatalf("ListMessagesBefore unknown cursor: %v", err)
	}
	if len(fallback) != 2 || fallback[1].ID != ids[4] {
		t.Fatalf("unknown cursor page wrong: %+v", fallback)
	}

	// Paging past the oldest message comes back empty.
	none, err := ListMessagesBefore(context.Background(), db, "room-1", ids[0], 2)
	if err != nil || len(none) != 0 {
		t.Fatalf("before oldest: len=%d err=%v", len(none), err)
	}
}

func TestDeleteMessagesForRoom_ScopedPurge(t *testing.T) {
	db := newMessageRepoDB(t, &domain.ChatMessage{})
	seedMessages(t, db, "room-1", 3)
	seedMessages(t, db, "room-2", 2)

	rows, err := DeleteMessagesForRoom(context.Background(), db, "room-1")
	if err != nil || rows != 3 {
		t.Fatalf("DeleteMessagesForRoom: rows=%d err=%v", rows, err)
	}

	if n, err := CountMessages(context.Background(), db, "room-1"); err != nil || n != 0 {
		t.Fatalf("room-1 count after purge = %d, %v", n, err)
	}
	if n, err := CountMessages(context.Background(), db, "room-2"); err != nil || n != 2 {
		t.Fatalf("room-2 count = %d, %v", n, err)
	}
}
