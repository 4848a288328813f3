package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAvatar_WritesFileAndReturnsURL(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, "/files/")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	url, err := s.SaveAvatar(context.Background(), "u1", "me.PNG", strings.NewReader("fake png bytes"))
	if err != nil {
		t.Fatalf("SaveAvatar: %v", err)
	}
	if !strings.HasPrefix(url, "/files/u1-") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("url = %q", url)
	}

	name := strings.TrimPrefix(url, "/files/")
	data, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "fake png bytes" {
		t.Fatalf("stored bytes = %q", data)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestSaveAvatar_RejectsUnsupportedType(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	for _, name := range []string{"run.exe", "noext", "page.html"} {
		if _, err := s.SaveAvatar(context.Background(), "u1", name, strings.NewReader("x")); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestSaveAvatar_RejectsOversized(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, "/files")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	big := io.LimitReader(zeroReader{}, MaxUploadBytes+1)
	if _, err := s.SaveAvatar(context.Background(), "u1", "big.jpg", big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v", err)
	}

	// The rejected upload leaves nothing in the store.
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("rejected upload left files: %v", entries)
	}
}

func TestSaveAvatar_SanitizesUserID(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, "/files")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	url, err := s.SaveAvatar(context.Background(), "../../etc/passwd", "a.png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("SaveAvatar: %v", err)
	}
	name := strings.TrimPrefix(url, "/files/")
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		t.Fatalf("hostile id leaked into filename: %q", name)
	}
	if _, err := os.Stat(filepath.Join(root, name)); err != nil {
		t.Fatalf("file not inside root: %v", err)
	}

	empty, err := s.SaveAvatar(context.Background(), "", "a.png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("SaveAvatar empty id: %v", err)
	}
	if !strings.HasPrefix(empty, "/files/anonymous-") {
		t.Fatalf("empty id url = %q", empty)
	}
}

func TestSaveAvatar_CanceledContext(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.SaveAvatar(ctx, "u1", "a.png", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

// zeroReader yields an endless stream of zero bytes.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
