// FileVTOC is a file-backed VTOC fake: each UID gets its own
// directory holding an "attr" file and one file per segment. It plays
// the same role for tests that ufs.ahci_disk_t plays for the teacher
// repo's block cache — a disk simulated with ordinary files, guarded
// by a single mutex around the seek-then-read/write sequence — except
// addressed by UID+segment instead of a flat block number, since this
// module's VTOC serves whole objects rather than a single block
// device.
package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"defs"
	"uid"
)

// FileVTOC stores attribute blocks and segments as plain files under
// a base directory.
type FileVTOC struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileVTOC returns a FileVTOC rooted at baseDir, which must already
// exist.
func NewFileVTOC(baseDir string) *FileVTOC {
	return &FileVTOC{baseDir: baseDir}
}

func (v *FileVTOC) objDir(u uid.UID) string {
	return filepath.Join(v.baseDir, u.String())
}

// FetchAttrBlock returns the stored attribute block for u, or
// EObjectNotFound if none has ever been stored.
func (v *FileVTOC) FetchAttrBlock(ctx context.Context, u uid.UID) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := os.ReadFile(filepath.Join(v.objDir(u), "attr"))
	if err != nil {
		return nil, defs.EObjectNotFound
	}
	return b, nil
}

// StoreAttrBlock durably writes u's attribute block.
func (v *FileVTOC) StoreAttrBlock(ctx context.Context, u uid.UID, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := os.MkdirAll(v.objDir(u), 0o755); err != nil {
		return defs.EFault
	}
	if err := os.WriteFile(filepath.Join(v.objDir(u), "attr"), data, 0o644); err != nil {
		return defs.EFault
	}
	return nil
}

func (v *FileVTOC) segPath(u uid.UID, seg int) string {
	return filepath.Join(v.objDir(u), fmt.Sprintf("seg.%d", seg))
}

// FetchSegment returns the stored bytes for segment seg of u, or
// EObjectNotFound if it was never stored.
func (v *FileVTOC) FetchSegment(ctx context.Context, u uid.UID, seg int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := os.ReadFile(v.segPath(u, seg))
	if err != nil {
		return nil, defs.EObjectNotFound
	}
	return b, nil
}

// StoreSegment durably writes segment seg of u.
func (v *FileVTOC) StoreSegment(ctx context.Context, u uid.UID, seg int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := os.MkdirAll(v.objDir(u), 0o755); err != nil {
		return defs.EFault
	}
	if err := os.WriteFile(v.segPath(u, seg), data, 0o644); err != nil {
		return defs.EFault
	}
	return nil
}
