package localstore

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Namespace keys, one JSON array per domain collection. Comments written
// against remotely stored reviews live in NSComments; comments on local
// reviews are embedded in the review record itself.
const (
	NSReviews      = "local_reviews"
	NSComments     = "local_comments"
	NSChatRooms    = "local_chat_rooms"
	NSChatMessages = "local_chat_messages"
)

// LocalIDPrefix marks records that exist only in device-local storage.
// Repositories route IDs with this prefix straight to the local tier.
const LocalIDPrefix = "local_"

// CommentIDPrefix marks comments created in the local tier, matching the
// routing the delete path relies on.
const CommentIDPrefix = "comment_"

// NewLocalID returns an opaque device-local record identifier. A random UUID
// is used rather than a wall-clock timestamp so rapid successive writes
// cannot collide.
func NewLocalID() string { return LocalIDPrefix + uuid.NewString() }

// NewCommentID returns an identifier for a locally stored comment.
func NewCommentID() string { return CommentIDPrefix + uuid.NewString() }

// IsLocalID reports whether id names a device-local record.
func IsLocalID(id string) bool { return strings.HasPrefix(id, LocalIDPrefix) }

// IsLocalCommentID reports whether id names a locally stored comment.
func IsLocalCommentID(id string) bool { return strings.HasPrefix(id, CommentIDPrefix) }

// Store reads and writes whole JSON collections through a DeviceStorage.
// Every read re-parses the collection and every write rewrites it; a mutex
// serializes writers within the process.
type Store struct {
	mu  sync.Mutex
	dev DeviceStorage
}

// New returns a Store over dev. A nil dev yields a store where every read is
// empty and every write is a refused no-op, mirroring a non-browser context
// in the original design.
func New(dev DeviceStorage) *Store {
	return &Store{dev: dev}
}

// LoadAll returns the collection stored under namespace. Empty, corrupt, or
// unavailable storage yields an empty slice; it never fails.
func LoadAll[T any](s *Store, namespace string) []T {
	if s == nil || s.dev == nil {
		return []T{}
	}
	raw, ok := s.dev.GetItem(namespace)
	if !ok || strings.TrimSpace(raw) == "" {
		return []T{}
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// Corrupt collection: treat as empty rather than surfacing an error
		// there is no further fallback tier to recover from.
		return []T{}
	}
	return out
}

// SaveAll rewrites the collection stored under namespace and reports whether
// the write succeeded.
func SaveAll[T any](s *Store, namespace string, items []T) bool {
	if s == nil || s.dev == nil {
		return false
	}
	b, err := json.Marshal(items)
	if err != nil {
		return false
	}
	return s.dev.SetItem(namespace, string(b)) == nil
}

// AppendOne appends item to the collection under namespace and reports
// whether the rewrite succeeded. Callers assign identifiers (NewLocalID)
// before appending.
func AppendOne[T any](s *Store, namespace string, item T) bool {
	if s == nil || s.dev == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := LoadAll[T](s, namespace)
	items = append(items, item)
	return SaveAll(s, namespace, items)
}

// RemoveWhere deletes every element matching pred and reports whether the
// rewritten collection was persisted. An unavailable store reports false.
func RemoveWhere[T any](s *Store, namespace string, pred func(T) bool) bool {
	if s == nil || s.dev == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := LoadAll[T](s, namespace)
	kept := items[:0]
	for _, it := range items {
		if !pred(it) {
			kept = append(kept, it)
		}
	}
	return SaveAll(s, namespace, kept)
}

// UpdateWhere applies mut to every element matching pred, in place, and
// reports whether any element matched and the rewrite succeeded.
func UpdateWhere[T any](s *Store, namespace string, pred func(*T) bool, mut func(*T)) bool {
	if s == nil || s.dev == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := LoadAll[T](s, namespace)
	matched := false
	for i := range items {
		if pred(&items[i]) {
			mut(&items[i])
			matched = true
		}
	}
	if !matched {
		return false
	}
	return SaveAll(s, namespace, items)
}
