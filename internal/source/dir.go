package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/dagaz/internal/apperr"
)

// Dir implements Source backed by a local directory tree.
type Dir struct {
	root   string // absolute path to the preset directory
	filter ListFilter
}

var _ Source = (*Dir)(nil)

// NewDir creates a directory source rooted at root. The directory must
// already exist.
func NewDir(root string, filter ListFilter) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("source: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: root is not a directory: %s", abs)
	}
	return &Dir{root: abs, filter: filter}, nil
}

// Root returns the absolute path the source reads from.
func (d *Dir) Root() string { return d.root }

// Filter returns the name filter applied to listings.
func (d *Dir) Filter() ListFilter { return d.filter }

// List walks the root and returns every file passing the filter, sorted
// by name. The marker combines mtime and size, so a rewrite with
// identical content but a fresh mtime counts as changed.
func (d *Dir) List(ctx context.Context) ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !d.filter.Match(name) {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		out = append(out, FileInfo{
			Name:   name,
			Marker: fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: list %s: %w", d.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Fetch returns the raw bytes of the named file.
func (d *Dir) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := d.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("source: read %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("source: read %s: %w", name, err)
	}
	return data, nil
}

// safePath resolves a relative name against the root and rejects any
// result that escapes it (directory traversal).
func (d *Dir) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("source: empty file name")
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("source: absolute paths not allowed: %s", name)
	}
	joined := filepath.Join(d.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("source: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("source: path escapes preset root: %s", name)
	}
	return abs, nil
}
