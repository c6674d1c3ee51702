package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
)

// ErrNotFound is returned when no agent with the requested name exists.
var ErrNotFound = errors.New("agent not found")

// ConflictInfo describes where an agent name is defined.
type ConflictInfo struct {
	HasConflict  bool `json:"hasConflict" yaml:"hasConflict"`
	LocalExists  bool `json:"localExists" yaml:"localExists"`
	GlobalExists bool `json:"globalExists" yaml:"globalExists"`
}

// Item is an agent file loaded from disk.
type Item struct {
	Name     string       `json:"name" yaml:"name"`
	Path     string       `json:"path" yaml:"path"`
	Location Location     `json:"location" yaml:"location"`
	Config   *Config      `json:"config" yaml:"config"`
	Conflict ConflictInfo `json:"conflict" yaml:"conflict"`
}

// Registry holds the agents found in a local and a global directory. When a
// name exists in both, the local agent wins.
type Registry struct {
	localDir  string
	globalDir string
	log       zerolog.Logger

	mu     sync.RWMutex
	local  map[string]*Item
	global map[string]*Item
}

// NewRegistry creates a registry over the two storage roots. Either may be
// empty to disable that location. Call Reload to read the agents.
func NewRegistry(localDir, globalDir string, log zerolog.Logger) *Registry {
	return &Registry{
		localDir:  localDir,
		globalDir: globalDir,
		log:       log,
		local:     make(map[string]*Item),
		global:    make(map[string]*Item),
	}
}

// Reload rereads both directories. Files that fail to parse are logged and
// skipped; a directory that does not exist holds no agents.
func (r *Registry) Reload() error {
	local, err := r.scan(r.localDir, LocationLocal)
	if err != nil {
		return err
	}
	global, err := r.scan(r.globalDir, LocationGlobal)
	if err != nil {
		return err
	}

	for name, item := range local {
		if g, ok := global[name]; ok {
			item.Conflict = ConflictInfo{HasConflict: true, LocalExists: true, GlobalExists: true}
			g.Conflict = item.Conflict
			r.log.Warn().Str("agent", name).Msg("agent exists in both local and global locations, local version takes precedence")
		}
	}

	r.mu.Lock()
	r.local = local
	r.global = global
	r.mu.Unlock()
	return nil
}

func (r *Registry) scan(dir string, loc Location) (map[string]*Item, error) {
	items := make(map[string]*Item)
	if dir == "" {
		return items, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s agents: %w", loc, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := LoadFile(path)
		if err != nil {
			r.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable agent file")
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		items[name] = &Item{
			Name:     name,
			Path:     path,
			Location: loc,
			Config:   cfg,
			Conflict: ConflictInfo{LocalExists: loc == LocationLocal, GlobalExists: loc == LocationGlobal},
		}
	}
	return items, nil
}

// LoadFile parses an agent file. Comments and trailing commas are accepted.
// A missing name is taken from the file name.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &cfg, nil
}

// Get returns the effective agent named name.
func (r *Registry) Get(name string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if item, ok := r.local[name]; ok {
		return item, nil
	}
	if item, ok := r.global[name]; ok {
		return item, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Conflict reports in which locations name is defined.
func (r *Registry) Conflict(name string) ConflictInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, local := r.local[name]
	_, global := r.global[name]
	return ConflictInfo{HasConflict: local && global, LocalExists: local, GlobalExists: global}
}

// List returns every loaded agent, local first, each group sorted by name.
// Shadowed global agents are included with their conflict flagged.
func (r *Registry) List() []*Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Item, 0, len(r.local)+len(r.global))
	items = append(items, sortedItems(r.local)...)
	items = append(items, sortedItems(r.global)...)
	return items
}

// Names returns the effective agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.local)+len(r.global))
	for name := range r.local {
		seen[name] = true
	}
	for name := range r.global {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of effective agents.
func (r *Registry) Count() int {
	return len(r.Names())
}

func sortedItems(m map[string]*Item) []*Item {
	items := make([]*Item, 0, len(m))
	for _, item := range m {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
