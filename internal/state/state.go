package state

import (
	"encoding/json" // For JSON encoding and decoding of the config file
	"errors"
	"fmt"
	"os" // For file system operations like reading and writing files
	"path/filepath"

	"ps1dev/internal/logger"
)

// Tool identifiers tracked in the config file.
const (
	GCC      = "gcc"
	PS1SDK   = "ps1sdk"
	Emulator = "emulator"
	GDB      = "gdb"
)

// KnownTools lists every tool the default skeleton carries, in display order.
var KnownTools = []string{GCC, PS1SDK, Emulator, GDB}

// ToolState is the persisted record of one tool. Fields other than installed and url
// are kept verbatim across a load/save cycle, like unknown top-level keys.
type ToolState struct {
	Installed bool   // True once the tool's check file was verified
	URL       string // Archive URL the tool was installed from, if known
	extra     map[string]json.RawMessage
}

// toolFields is the part of a tool record this program reads.
type toolFields struct {
	Installed bool   `json:"installed"`
	URL       string `json:"url"`
}

// MarshalJSON writes installed and url alongside any preserved fields.
func (t ToolState) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(t.extra)+2)
	for k, v := range t.extra {
		doc[k] = v
	}
	doc["installed"] = t.Installed
	doc["url"] = t.URL
	return json.Marshal(doc)
}

// UnmarshalJSON reads installed and url and stashes every other field.
func (t *ToolState) UnmarshalJSON(data []byte) error {
	var fields toolFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	delete(doc, "installed")
	delete(doc, "url")

	*t = ToolState{Installed: fields.Installed, URL: fields.URL}
	if len(doc) > 0 {
		t.extra = doc
	}
	return nil
}

// ToolConfig is the whole config document: {"tools": {...}} plus any top-level keys
// written by other programs, which are kept verbatim across a load/save cycle.
type ToolConfig struct {
	Tools map[string]ToolState
	extra map[string]json.RawMessage
}

// ConfigParseError reports a config file that exists but is not valid JSON.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parse config %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

// Default returns the skeleton used when no config file exists: every known tool
// present with installed=false.
func Default() *ToolConfig {
	cfg := &ToolConfig{Tools: make(map[string]ToolState, len(KnownTools))}
	for _, id := range KnownTools {
		cfg.Tools[id] = ToolState{}
	}
	return cfg
}

// Installed reports whether the config marks id as installed.
func (c *ToolConfig) Installed(id string) bool {
	return c.Tools[id].Installed
}

// MarkInstalled sets the installed flag for id, keeping a previously recorded URL
// when url is empty.
func (c *ToolConfig) MarkInstalled(id, url string) {
	ts := c.Tools[id]
	ts.Installed = true
	if url != "" {
		ts.URL = url
	}
	c.Tools[id] = ts
}

// MarshalJSON writes "tools" alongside any preserved top-level keys.
func (c *ToolConfig) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(c.extra)+1)
	for k, v := range c.extra {
		doc[k] = v
	}
	doc["tools"] = c.Tools
	return json.Marshal(doc)
}

// UnmarshalJSON reads "tools" and stashes every other top-level key.
func (c *ToolConfig) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	c.Tools = make(map[string]ToolState)
	if raw, ok := doc["tools"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &c.Tools); err != nil {
			return fmt.Errorf("tools: %w", err)
		}
		if c.Tools == nil {
			c.Tools = make(map[string]ToolState)
		}
	}
	delete(doc, "tools")
	if len(doc) > 0 {
		c.extra = doc
	}
	return nil
}

// Load reads the config file at path. A missing file yields the default skeleton;
// a file that cannot be parsed yields a *ConfigParseError.
func Load(path string) (*ToolConfig, error) {
	// Read entire config JSON file into memory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("[DEBUG] No config at %s, using defaults\n", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg ToolConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigParseError{Path: path, Err: err}
	}

	// Fill in known tools the file does not mention so callers never see a hole
	for _, id := range KnownTools {
		if _, ok := cfg.Tools[id]; !ok {
			cfg.Tools[id] = ToolState{}
		}
	}
	return &cfg, nil
}

// Save writes cfg to path as two-space indented JSON, replacing the file.
// There is no locking: two processes saving at once race and the last writer wins.
func Save(path string, cfg *ToolConfig) error {
	// Marshal the config into indented JSON bytes
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Log debug info showing the full JSON being written (can be verbose)
	logger.Debug("[DEBUG] Writing config to %s:\n%s\n", path, string(data))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
