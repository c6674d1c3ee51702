// Package agent reads Q CLI agent configurations from their local and
// global storage roots.
package agent

import (
	"errors"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SchemaURL is the $schema value written into new agent files.
const SchemaURL = "https://raw.githubusercontent.com/aws/amazon-q-developer-cli/refs/heads/main/schemas/agent-v1.json"

var (
	// BasicTools are available to every agent created with New.
	BasicTools = []string{"fs_read", "fs_write", "execute_bash", "knowledge", "thinking"}
	// AdvancedTools are the specialized tools New also enables.
	AdvancedTools = []string{"use_aws", "gh_issue", "web_search", "calculator", "code_interpreter"}
)

// Location is the storage root an agent was loaded from.
type Location string

const (
	LocationLocal  Location = "local"
	LocationGlobal Location = "global"
)

// Config is a Q CLI agent configuration file.
type Config struct {
	Schema           string            `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Name             string            `json:"name" yaml:"name"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Prompt           *string           `json:"prompt" yaml:"prompt"`
	MCPServers       map[string]any    `json:"mcpServers,omitempty" yaml:"mcpServers,omitempty"`
	Tools            []string          `json:"tools" yaml:"tools"`
	ToolAliases      map[string]string `json:"toolAliases,omitempty" yaml:"toolAliases,omitempty"`
	AllowedTools     []string          `json:"allowedTools" yaml:"allowedTools"`
	Resources        []string          `json:"resources" yaml:"resources"`
	Hooks            map[string]any    `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	ToolsSettings    map[string]any    `json:"toolsSettings,omitempty" yaml:"toolsSettings,omitempty"`
	UseLegacyMCPJSON bool              `json:"useLegacyMcpJson" yaml:"useLegacyMcpJson"`
}

// New returns the default configuration for a new agent.
func New(name string) *Config {
	return &Config{
		Schema:           SchemaURL,
		Name:             name,
		Description:      "Custom Q CLI Agent",
		Tools:            slices.Concat(BasicTools, AdvancedTools),
		AllowedTools:     []string{"fs_read"},
		Resources:        []string{"file://README.md", "file://.amazonq/rules/**/*.md"},
		UseLegacyMCPJSON: true,
	}
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName checks that name can be used as an agent file name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("agent name cannot be empty")
	case len(name) > 50:
		return errors.New("agent name must be 50 characters or less")
	case !namePattern.MatchString(name):
		return errors.New("agent name can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// ToolEnabled checks if a tool is available to this agent.
func (c *Config) ToolEnabled(toolID string) bool {
	return slices.ContainsFunc(c.Tools, func(pattern string) bool {
		return matchWildcard(pattern, toolID)
	})
}

// ToolAllowed checks if a tool runs without asking for confirmation.
func (c *Config) ToolAllowed(toolID string) bool {
	return slices.ContainsFunc(c.AllowedTools, func(pattern string) bool {
		return matchWildcard(pattern, toolID)
	})
}

// Clone creates a deep copy of the configuration's own fields. Nested values
// inside MCPServers, Hooks and ToolsSettings are shared.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Prompt != nil {
		prompt := *c.Prompt
		clone.Prompt = &prompt
	}
	clone.Tools = slices.Clone(c.Tools)
	clone.AllowedTools = slices.Clone(c.AllowedTools)
	clone.Resources = slices.Clone(c.Resources)
	clone.ToolAliases = maps.Clone(c.ToolAliases)
	clone.MCPServers = maps.Clone(c.MCPServers)
	clone.Hooks = maps.Clone(c.Hooks)
	clone.ToolsSettings = maps.Clone(c.ToolsSettings)
	return &clone
}

// matchWildcard checks if a string matches a wildcard pattern.
// For simple patterns (* at start/end), uses string matching.
// For anything else containing *, uses doublestar.
func matchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}

	// Simple suffix wildcard (prefix*)
	if strings.HasSuffix(pattern, "*") && strings.Count(pattern, "*") == 1 {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}

	// Simple prefix wildcard (*suffix)
	if strings.HasPrefix(pattern, "*") && strings.Count(pattern, "*") == 1 {
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	}

	if strings.Contains(pattern, "*") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}

	return pattern == s
}
