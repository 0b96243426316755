// Package registry implements the model artifact registry against a
// filesystem directory of versioned weight directories, each carrying a
// meta.json sidecar, with an "active" symlink swapped atomically on
// promotion.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/toolcat/visimatch/domain/modelreg"
)

const (
	metaFileName     = "meta.json"
	activeLinkName   = "active"
	archivedDirName  = "archived"
)

type meta struct {
	Version   string          `json:"version"`
	SizeBytes int64           `json:"size_bytes"`
	CreatedAt time.Time       `json:"created_at"`
	Origin    modelreg.Origin `json:"origin"`
	Checksum  string          `json:"checksum"`
}

// FilesystemRegistry is a modelreg.Registry backed by a directory tree:
//
//	root/<version>/meta.json       artifact metadata sidecar
//	root/<version>/...             the model's weight files
//	root/active -> <version>       symlink designating the active artifact
//	root/archived/<version>/...    artifacts moved out of the promotable set
type FilesystemRegistry struct {
	root string
	mu   sync.Mutex
}

// NewFilesystemRegistry opens a registry rooted at root, creating it if
// it does not already exist.
func NewFilesystemRegistry(root string) (*FilesystemRegistry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create registry root: %w", err)
	}
	return &FilesystemRegistry{root: root}, nil
}

// Active resolves the active symlink to its artifact's metadata.
func (r *FilesystemRegistry) Active(ctx context.Context) (modelreg.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return modelreg.Artifact{}, err
	}

	linkPath := filepath.Join(r.root, activeLinkName)
	target, err := os.Readlink(linkPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return modelreg.Artifact{}, modelreg.ErrNoArtifacts
		}
		return modelreg.Artifact{}, fmt.Errorf("read active pointer: %w", err)
	}

	return r.readMeta(target)
}

// List returns every artifact under root (excluding the archived subtree)
// whose origin matches originFilter, or all of them when originFilter is
// nil.
func (r *FilesystemRegistry) List(ctx context.Context, originFilter *modelreg.Origin) ([]modelreg.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read registry root: %w", err)
	}

	var out []modelreg.Artifact
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == archivedDirName {
			continue
		}
		a, err := r.readMeta(entry.Name())
		if err != nil {
			continue // skip directories without a valid sidecar
		}
		if originFilter != nil && a.Origin != *originFilter {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Promote atomically swaps the active pointer to version. It writes a
// new symlink under a temporary name and renames it over the old one —
// rename is atomic on POSIX filesystems, so readers calling Active never
// observe a half-written pointer.
func (r *FilesystemRegistry) Promote(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.readMeta(version); err != nil {
		return err
	}

	linkPath := filepath.Join(r.root, activeLinkName)
	tmpPath := linkPath + ".tmp"

	_ = os.Remove(tmpPath)
	if err := os.Symlink(version, tmpPath); err != nil {
		return fmt.Errorf("create pending active pointer: %w", err)
	}
	if err := os.Rename(tmpPath, linkPath); err != nil {
		return fmt.Errorf("swap active pointer: %w", err)
	}
	return nil
}

// Archive moves a non-active artifact's directory into the archived
// subtree, removing it from List's default results without deleting it.
func (r *FilesystemRegistry) Archive(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refuseIfActive(version); err != nil {
		return err
	}

	archivedRoot := filepath.Join(r.root, archivedDirName)
	if err := os.MkdirAll(archivedRoot, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	src := filepath.Join(r.root, version)
	dst := filepath.Join(archivedRoot, version)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive artifact %s: %w", version, err)
	}
	return nil
}

// Delete removes a non-active artifact's directory entirely.
func (r *FilesystemRegistry) Delete(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refuseIfActive(version); err != nil {
		return err
	}

	path := filepath.Join(r.root, version)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return modelreg.ErrNotFound
		}
		return fmt.Errorf("stat artifact %s: %w", version, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete artifact %s: %w", version, err)
	}
	return nil
}

// Register writes a's meta.json sidecar into its version directory,
// which must already contain the artifact's weight files.
func (r *FilesystemRegistry) Register(ctx context.Context, a modelreg.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(r.root, a.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	m := meta{
		Version:   a.Version,
		SizeBytes: a.SizeBytes,
		CreatedAt: a.CreatedAt,
		Origin:    a.Origin,
		Checksum:  a.Checksum,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact metadata: %w", err)
	}

	tmpPath := filepath.Join(dir, metaFileName+".tmp")
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmpPath, filepath.Join(dir, metaFileName))
}

func (r *FilesystemRegistry) refuseIfActive(version string) error {
	active, err := os.Readlink(filepath.Join(r.root, activeLinkName))
	if err == nil && active == version {
		return modelreg.ErrActiveArtifact
	}
	return nil
}

func (r *FilesystemRegistry) readMeta(version string) (modelreg.Artifact, error) {
	path := filepath.Join(r.root, version, metaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return modelreg.Artifact{}, modelreg.ErrNotFound
		}
		return modelreg.Artifact{}, fmt.Errorf("read metadata for %s: %w", version, err)
	}

	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return modelreg.Artifact{}, fmt.Errorf("parse metadata for %s: %w", version, err)
	}

	return modelreg.Artifact{
		Version:   m.Version,
		Path:      filepath.Join(r.root, version),
		SizeBytes: m.SizeBytes,
		CreatedAt: m.CreatedAt,
		Origin:    m.Origin,
		Checksum:  m.Checksum,
	}, nil
}

// ChecksumFile computes the sha256 of every file under dir in
// deterministic (lexical) walk order, suitable for Artifact.Checksum.
func ChecksumFile(dir string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() == metaFileName {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var _ modelreg.Registry = (*FilesystemRegistry)(nil)
