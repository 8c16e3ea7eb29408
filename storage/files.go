package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DiskFileStore keeps attachment files under one root directory. Stored names
// are <uuid>-<unix millis><ext>, so concurrent uploads never collide.
type DiskFileStore struct {
	root string
	now  func() time.Time
}

func NewDiskFileStore(root string) (*DiskFileStore, error) {
	if root == "" {
		root = "./uploads"
	}
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &DiskFileStore{root: root, now: time.Now}, nil
}

func (d *DiskFileStore) Root() string { return d.root }

// Save copies r into a freshly named file and returns the stored name.
func (d *DiskFileStore) Save(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := fmt.Sprintf("%s-%d%s", uuid.NewString(), d.now().UnixMilli(), ext)
	path := filepath.Join(d.root, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes stored files, ignoring ones already gone.
func (d *DiskFileStore) Remove(names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		path := filepath.Join(d.root, filepath.Base(name))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", name).Msg("failed to remove stored attachment")
		}
	}
}
