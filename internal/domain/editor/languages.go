package editor

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// PlainText is the language tag for unknown file types
const PlainText = "plaintext"

var defaultExtensions = map[string]string{
	".dart":   "dart",
	".yaml":   "yaml",
	".yml":    "yaml",
	".json":   "json",
	".arb":    "json",
	".md":     "markdown",
	".html":   "html",
	".htm":    "html",
	".css":    "css",
	".scss":   "scss",
	".js":     "javascript",
	".mjs":    "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".go":     "go",
	".py":     "python",
	".sh":     "shell",
	".xml":    "xml",
	".svg":    "xml",
	".plist":  "xml",
	".kt":     "kotlin",
	".kts":    "kotlin",
	".java":   "java",
	".swift":  "swift",
	".gradle": "groovy",
	".c":      "c",
	".h":      "c",
	".cc":     "cpp",
	".cpp":    "cpp",
	".rs":     "rust",
	".sql":    "sql",
	".toml":   "ini",
	".ini":    "ini",
	".txt":    PlainText,
}

var defaultFilenames = map[string]string{
	"Dockerfile": "dockerfile",
	"Podfile":    "ruby",
	"Gemfile":    "ruby",
}

// Languages maps file names to editor language tags
type Languages struct {
	extensions map[string]string
	filenames  map[string]string
}

// Overrides is the shape of a language override file
type Overrides struct {
	Extensions map[string]string `yaml:"extensions" toml:"extensions"`
	Filenames  map[string]string `yaml:"filenames" toml:"filenames"`
}

var defaultLanguages = DefaultLanguages()

// DefaultLanguages returns the built-in table
func DefaultLanguages() *Languages {
	l := &Languages{
		extensions: make(map[string]string, len(defaultExtensions)),
		filenames:  make(map[string]string, len(defaultFilenames)),
	}
	for k, v := range defaultExtensions {
		l.extensions[k] = v
	}
	for k, v := range defaultFilenames {
		l.filenames[k] = v
	}
	return l
}

// LanguageFor classifies name with the built-in table
func LanguageFor(name string) string {
	return defaultLanguages.For(name)
}

// For returns the language tag for a file name or path. Exact file names
// win over extensions; extensions compare case-insensitively.
func (l *Languages) For(name string) string {
	base := path.Base(name)
	if tag, ok := l.filenames[base]; ok {
		return tag
	}
	if tag, ok := l.extensions[strings.ToLower(path.Ext(base))]; ok {
		return tag
	}
	return PlainText
}

// With returns a copy of l with o applied
func (l *Languages) With(o Overrides) *Languages {
	out := &Languages{
		extensions: make(map[string]string, len(l.extensions)+len(o.Extensions)),
		filenames:  make(map[string]string, len(l.filenames)+len(o.Filenames)),
	}
	for k, v := range l.extensions {
		out.extensions[k] = v
	}
	for k, v := range l.filenames {
		out.filenames[k] = v
	}
	for ext, tag := range o.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || tag == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out.extensions[ext] = tag
	}
	for name, tag := range o.Filenames {
		if name != "" && tag != "" {
			out.filenames[name] = tag
		}
	}
	return out
}

// LoadLanguages reads an override file (.yaml, .yml or .toml) and applies
// it over the built-in table. An empty path returns the defaults.
func LoadLanguages(file string) (*Languages, error) {
	if file == "" {
		return DefaultLanguages(), nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read language overrides: %w", err)
	}

	var o Overrides
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &o)
	case ".toml":
		err = toml.Unmarshal(data, &o)
	default:
		return nil, fmt.Errorf("unsupported language override format %q", filepath.Ext(file))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse language overrides: %w", err)
	}

	return DefaultLanguages().With(o), nil
}
