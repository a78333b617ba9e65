package devbackend

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/shared/paths"
	"github.com/GriffinCanCode/forgestudio/internal/shared/utils"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrFileNotFound      = errors.New("file not found")
	ErrInvalidPath       = errors.New("invalid path")
	ErrBinaryFile        = errors.New("file is not text")
)

// DefaultIgnore hides build output from listings
var DefaultIgnore = paths.Generated()

// scaffold seeds a workspace when no template is configured
var scaffold = map[string]string{
	"pubspec.yaml": "name: app\ndescription: A new project.\nversion: 1.0.0\n\nenvironment:\n  sdk: '>=3.0.0 <4.0.0'\n\ndependencies:\n  flutter:\n    sdk: flutter\n",
	"lib/main.dart": "import 'package:flutter/material.dart';\n\nvoid main() => runApp(const MaterialApp(home: Text('Hello')));\n",
	"web/index.html": "<!DOCTYPE html>\n<html>\n<head>\n  <base href=\"/\">\n  <meta charset=\"UTF-8\">\n</head>\n<body>\n  <script src=\"flutter_bootstrap.js\" async></script>\n</body>\n</html>\n",
}

// Store keeps workspaces as directories under a root
type Store struct {
	root     string
	template string
	ignore   []string
}

// NewStore creates the root directory if needed
func NewStore(root, template string, ignore []string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root: %w", err)
	}
	if ignore == nil {
		ignore = DefaultIgnore
	}
	return &Store{root: abs, template: template, ignore: ignore}, nil
}

// Create makes a new workspace from the template, or from a minimal
// scaffold, and returns its id.
func (s *Store) Create() (string, error) {
	wid := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	dir := filepath.Join(s.root, wid)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	if s.template != "" {
		if err := copyTree(s.template, dir); err != nil {
			return "", fmt.Errorf("failed to copy template: %w", err)
		}
		return wid, nil
	}

	for rel, text := range scaffold {
		if err := writeFile(paths.Project{Root: dir}.Join(rel), text); err != nil {
			return "", err
		}
	}
	return wid, nil
}

// Dir returns the directory of an existing workspace
func (s *Store) Dir(wid string) (string, error) {
	if err := utils.ValidateID(wid, "workspace id", true); err != nil {
		return "", ErrWorkspaceNotFound
	}
	dir := filepath.Join(s.root, wid)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", ErrWorkspaceNotFound
	}
	return dir, nil
}

func (s *Store) resolve(wid, rel string) (string, error) {
	dir, err := s.Dir(wid)
	if err != nil {
		return "", err
	}
	if err := utils.ValidatePath(rel); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), nil
}

func (s *Store) ignored(rel string, dir bool) bool {
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if dir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// List returns the nested listing of a workspace, ignored paths excluded.
// Children are sorted by name.
func (s *Store) List(wid string) ([]backend.TreeItem, error) {
	dir, err := s.Dir(wid)
	if err != nil {
		return nil, err
	}

	type record struct {
		rel string
		dir bool
	}
	var (
		mu      sync.Mutex
		records []record
	)

	// fastwalk calls fn from several goroutines
	walkErr := fastwalk.Walk(nil, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if s.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		mu.Lock()
		records = append(records, record{rel: rel, dir: d.IsDir()})
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", walkErr)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].rel < records[j].rel })

	// A parent's record sorts before its children's
	nodes := make(map[string]*listNode, len(records))
	var roots []*listNode
	for _, r := range records {
		n := &listNode{item: backend.TreeItem{Path: r.rel, Name: path.Base(r.rel), Type: "file"}}
		if r.dir {
			n.item.Type = "dir"
		}
		nodes[r.rel] = n

		if parent, ok := nodes[path.Dir(r.rel)]; ok {
			parent.children = append(parent.children, n)
		} else {
			roots = append(roots, n)
		}
	}
	return materialize(roots), nil
}

type listNode struct {
	item     backend.TreeItem
	children []*listNode
}

func materialize(nodes []*listNode) []backend.TreeItem {
	out := make([]backend.TreeItem, 0, len(nodes))
	for _, n := range nodes {
		item := n.item
		if item.Type == "dir" {
			item.Children = materialize(n.children)
		}
		out = append(out, item)
	}
	return out
}

// ReadFile returns the text of a workspace file
func (s *Store) ReadFile(wid, rel string) (string, error) {
	p, err := s.resolve(wid, rel)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", err
	}
	if !isText(data) {
		return "", ErrBinaryFile
	}
	return string(data), nil
}

// isText reports whether data sniffs as a text type
func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// WriteFile stores content durably, creating parent directories
func (s *Store) WriteFile(wid, rel, content string) error {
	p, err := s.resolve(wid, rel)
	if err != nil {
		return err
	}
	return writeFile(p, content)
}

func writeFile(p, content string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return f.Close()
}

// CleanBuild removes the previous build output
func (s *Store) CleanBuild(wid string) error {
	dir, err := s.Dir(wid)
	if err != nil {
		return err
	}
	return os.RemoveAll(paths.Project{Root: dir}.WebDir())
}

func copyTree(src, dst string) error {
	return fastwalk.Walk(nil, src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return writeFile(target, string(data))
	})
}
