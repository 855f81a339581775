package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// blobURLPrefix is where attachment handles are served from; the data
// directory is mounted read-only under /data.
const blobURLPrefix = "/data/" + blobsDir + "/"

const blobsDir = "attachments"

// DiskBlobStore holds attachment binaries on disk and hands out opaque
// URL handles. The board only ever stores the handle string; whoever
// deletes an attachment (or its task) calls Release to free the bytes.
type DiskBlobStore struct {
	dir string
}

// NewDiskBlobStore creates the attachments directory under the data dir.
func NewDiskBlobStore(dataDir string) (*DiskBlobStore, error) {
	dir := filepath.Join(dataDir, blobsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskBlobStore{dir: dir}, nil
}

// Put stores the blob and returns its URL handle and size. The original
// file name only contributes its extension; the handle itself is random.
func (b *DiskBlobStore) Put(_ context.Context, name string, r io.Reader) (string, int64, error) {
	id := uuid.NewString()
	if ext := sanitizeExt(name); ext != "" {
		id += ext
	}
	f, err := os.Create(filepath.Join(b.dir, id))
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(b.dir, id))
		return "", 0, err
	}
	return blobURLPrefix + id, size, nil
}

// Release frees the bytes behind a previously issued handle. Handles this
// store did not issue (external links pasted by the client) are ignored;
// a handle that is already gone is not an error.
func (b *DiskBlobStore) Release(_ context.Context, url string) error {
	name, ok := b.localName(url)
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(b.dir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// localName maps a handle back to its file name, rejecting anything that
// could escape the blob directory.
func (b *DiskBlobStore) localName(url string) (string, bool) {
	if !strings.HasPrefix(url, blobURLPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, blobURLPrefix)
	if name == "" || name != path.Base(name) {
		return "", false
	}
	return name, true
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// String implements fmt.Stringer for log output.
func (b *DiskBlobStore) String() string {
	return fmt.Sprintf("disk blob store at %s", b.dir)
}
