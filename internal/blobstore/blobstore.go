// Package blobstore persists user-uploaded files, currently profile avatars,
// on the local filesystem and hands back stable public URLs for them. The
// Store interface keeps handlers independent of where the bytes land.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadBytes caps a single upload. Avatars have no business being larger.
const MaxUploadBytes = 5 << 20

// ErrTooLarge is returned when an upload exceeds MaxUploadBytes.
var ErrTooLarge = errors.New("upload exceeds size limit")

// ErrUnsupportedType is returned for file extensions outside the allow list.
var ErrUnsupportedType = errors.New("unsupported file type")

var allowedExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

// Store saves uploaded blobs and resolves their public URLs.
type Store interface {
	// SaveAvatar stores the avatar bytes for a user and returns the public
	// URL of the stored file. The original filename is only consulted for
	// its extension.
	SaveAvatar(ctx context.Context, userID, filename string, r io.Reader) (string, error)
}

// FSStore is a Store backed by a directory served as static files.
type FSStore struct {
	Root    string // directory uploads are written to
	BaseURL string // public prefix the directory is served under, e.g. "/files"
}

// NewFSStore creates the upload directory if needed.
func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &FSStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// SaveAvatar writes the upload to <root>/<userID>-<uuid><ext> via a temp file
// and rename, so a crashed upload never leaves a half-written avatar behind.
func (s *FSStore) SaveAvatar(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExts[ext]; !ok {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s%s", sanitizeID(userID), uuid.NewString(), ext)
	final := filepath.Join(s.Root, name)

	tmp, err := os.CreateTemp(s.Root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blobstore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, MaxUploadBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("blobstore: write upload: %w", err)
	}
	if n > MaxUploadBytes {
		return "", ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("blobstore: finalize upload: %w", err)
	}
	return s.BaseURL + "/" + name, nil
}

var idReplacer = strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")

// sanitizeID strips path-hostile characters from a user id before it becomes
// part of a filename.
func sanitizeID(id string) string {
	id = idReplacer.Replace(id)
	id = path.Base(id)
	if id == "" || id == "." {
		return "anonymous"
	}
	return id
}
