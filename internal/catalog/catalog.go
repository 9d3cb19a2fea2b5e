// Package catalog reads the tool catalog: where each tool archive is downloaded from,
// where it is unpacked, and which file proves the install worked.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tools-urls.json
var defaultCatalog []byte

// Entry describes one downloadable tool archive for one platform.
type Entry struct {
	Name        string `json:"-" yaml:"-"`                       // Catalog key, e.g. gdb_multiarch_win
	URL         string `json:"url" yaml:"url"`                   // Archive location
	Platform    string `json:"platform" yaml:"platform"`         // Empty matches every platform
	ExtractPath string `json:"extractPath" yaml:"extractPath"`   // Relative to the install root
	CheckFile   string `json:"checkFile" yaml:"checkFile"`       // Relative to ExtractPath
	Flatten     bool   `json:"flatten" yaml:"flatten"`           // Unwrap the SDK folder inside the archive
	Archive     string `json:"archive,omitempty" yaml:"archive"` // Overrides the kind implied by the URL suffix
}

// Catalog is an ordered list of entries. Order is significant: Resolve returns the
// first match, so platform-specific variants must appear in the intended order.
type Catalog struct {
	entries []Entry
}

// ToolNotFoundError reports that no entry matched a tool/platform pair.
type ToolNotFoundError struct {
	Tool     string
	Platform string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %s not found for platform %s", e.Tool, e.Platform)
}

// CurrentPlatform returns the platform identifier entries are matched against.
func CurrentPlatform() string {
	return runtime.GOOS
}

// normalizePlatform folds the Node-style spelling used by older catalogs into GOOS.
func normalizePlatform(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "win32", "win":
		return "windows"
	case "macos", "osx":
		return "darwin"
	}
	return p
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, falling back to the embedded catalog when the
// file does not exist.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalog document, keeping key order. JSON objects are streamed
// token by token; anything else is read as YAML.
func Parse(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return parseYAML(trimmed)
}

func parseJSON(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("catalog must be a JSON object")
	}

	c := &Catalog{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		e.Name = key
		c.entries = append(c.entries, e)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after catalog object")
	}
	return c, nil
}

func parseYAML(data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return &Catalog{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("catalog must be a mapping, got line %d", root.Line)
	}

	c := &Catalog{}
	// Mapping content alternates key, value
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var e Entry
		if err := root.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		e.Name = key
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Entries returns the entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Resolve finds the entry for toolName on platform. An entry matches when its key is
// toolName or starts with toolName+"_", and it has no platform or the same platform.
// The first match in catalog order wins.
func (c *Catalog) Resolve(toolName, platform string) (Entry, error) {
	want := normalizePlatform(platform)
	for _, e := range c.entries {
		if e.Name != toolName && !strings.HasPrefix(e.Name, toolName+"_") {
			continue
		}
		if e.Platform == "" || normalizePlatform(e.Platform) == want {
			return e, nil
		}
	}
	return Entry{}, &ToolNotFoundError{Tool: toolName, Platform: platform}
}
