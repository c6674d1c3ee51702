// Package project locates the workspace root that resource patterns are
// resolved against.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoDirectory is returned when no directory is open.
var ErrNoDirectory = errors.New("no directory is open")

// Markers identify a workspace root, checked in order at each level.
var Markers = []string{".amazonq", ".git"}

// Info contains workspace metadata.
type Info struct {
	ID       string  `json:"id"`
	Worktree string  `json:"worktree"`
	Marker   string  `json:"marker,omitempty"`
	VCSDir   *string `json:"vcsDir,omitempty"`
	VCS      *string `json:"vcs,omitempty"`
}

// cache stores project info by directory to avoid repeated walks.
var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Info)
)

// FromDirectory detects the workspace containing directory:
// 1. Walks up the tree looking for one of Markers
// 2. Falls back to directory itself when no marker is found
// 3. Identifies the workspace by a hash of its root path
func FromDirectory(directory string) (*Info, error) {
	directory, err := filepath.Abs(directory)
	if err != nil {
		return nil, err
	}

	cacheMu.RLock()
	if info, ok := cache[directory]; ok {
		cacheMu.RUnlock()
		return info, nil
	}
	cacheMu.RUnlock()

	info := &Info{Worktree: directory}
	if root, marker := findMarker(directory); root != "" {
		info.Worktree = root
		info.Marker = marker
	}
	if gitDir := findGitDir(info.Worktree); gitDir != "" {
		vcs := "git"
		info.VCSDir = &gitDir
		info.VCS = &vcs
	}
	info.ID = HashDirectory(info.Worktree)

	cacheProject(directory, info)
	return info, nil
}

// HashDirectory creates a hash-based ID from a directory path.
func HashDirectory(directory string) string {
	h := sha256.New()
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// findMarker walks up from start and returns the first directory holding
// a marker, along with the marker's name.
func findMarker(start string) (string, string) {
	current := start
	for {
		for _, marker := range Markers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, marker
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", ""
		}
		current = parent
	}
}

// findGitDir returns the git directory of a worktree root, following the
// gitdir pointer of worktrees and submodules.
func findGitDir(root string) string {
	gitPath := filepath.Join(root, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return gitPath
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir: ") {
		return ""
	}
	gitdir := strings.TrimPrefix(line, "gitdir: ")
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(root, gitdir)
	}
	return gitdir
}

// cacheProject adds a project to the in-memory cache.
func cacheProject(directory string, info *Info) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache[directory] = info
}

// ClearCache clears the project cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]*Info)
}

// Resolver supplies the single active search root.
type Resolver struct {
	dir string
}

// NewResolver creates a resolver for the workspace containing dir. An empty
// dir means no directory is open.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Root returns the workspace root directory.
func (r *Resolver) Root() (string, error) {
	if strings.TrimSpace(r.dir) == "" {
		return "", ErrNoDirectory
	}
	st, err := os.Stat(r.dir)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", r.dir, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%s is not a directory", r.dir)
	}
	info, err := FromDirectory(r.dir)
	if err != nil {
		return "", err
	}
	return info.Worktree, nil
}
