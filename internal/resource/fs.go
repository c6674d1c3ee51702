package resource

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Finder locates files matching a glob pattern below a root directory and
// returns their absolute paths, at most maxResults of them.
type Finder interface {
	FindFiles(ctx context.Context, root, pattern string, maxResults int) ([]string, error)
}

// Stater reports file metadata. afero.Fs satisfies it.
type Stater interface {
	Stat(name string) (os.FileInfo, error)
}

var errLimitReached = errors.New("result limit reached")

// FS implements Finder and Stater over an afero filesystem.
type FS struct {
	fs afero.Fs
}

// NewFS wraps an afero filesystem.
func NewFS(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// NewOsFS returns an FS backed by the host filesystem.
func NewOsFS() *FS {
	return NewFS(afero.NewOsFs())
}

// Stat implements Stater.
func (f *FS) Stat(name string) (os.FileInfo, error) {
	return f.fs.Stat(name)
}

// FindFiles implements Finder. Relative patterns are anchored at root;
// absolute patterns are searched where they point. Only files match.
func (f *FS) FindFiles(ctx context.Context, root, pattern string, maxResults int) ([]string, error) {
	full := filepath.ToSlash(pattern)
	if !path.IsAbs(full) {
		full = path.Join(filepath.ToSlash(root), full)
	}

	// Walk from the longest literal prefix so unrelated directories are never read.
	base, sub := doublestar.SplitPattern(full)
	baseDir := filepath.FromSlash(base)
	fsys := ctxFS{ctx: ctx, fsys: afero.NewIOFS(afero.NewBasePathFs(f.fs, baseDir))}

	var matches []string
	err := doublestar.GlobWalk(fsys, sub, func(p string, _ fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		matches = append(matches, filepath.Join(baseDir, filepath.FromSlash(p)))
		if maxResults > 0 && len(matches) >= maxResults {
			return errLimitReached
		}
		return nil
	}, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if errors.Is(err, errLimitReached) {
		err = nil
	}
	return matches, err
}

// ctxFS fails every directory read once ctx is done, so a walk that finds
// nothing still stops at the deadline.
type ctxFS struct {
	ctx  context.Context
	fsys fs.FS
}

func (c ctxFS) Open(name string) (fs.File, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	return c.fsys.Open(name)
}

func (c ctxFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	return fs.ReadDir(c.fsys, name)
}

func (c ctxFS) Stat(name string) (fs.FileInfo, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	return fs.Stat(c.fsys, name)
}
