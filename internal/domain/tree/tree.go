// Package tree turns a flat workspace listing into an ordered file forest.
//
// Within every directory, subdirectories come first, then files, each group
// ordered by byte-wise comparison of names. The result depends only on the
// set of entries, never on their order, so rebuilding from the same listing
// yields an equal forest.
package tree

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
	"github.com/GriffinCanCode/forgestudio/internal/shared/utils"
)

// Option configures Build
type Option func(*options)

type options struct {
	ignore []string
}

// WithIgnore drops entries matching any of the doublestar globs. A matching
// directory takes its whole subtree with it.
func WithIgnore(globs ...string) Option {
	return func(o *options) {
		for _, g := range globs {
			if g = strings.TrimSpace(g); g != "" && doublestar.ValidatePattern(g) {
				o.ignore = append(o.ignore, g)
			}
		}
	}
}

type node struct {
	name     string
	path     string
	kind     types.FileKind
	children map[string]*node
}

func (n *node) child(name, path string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c, ok := n.children[name]
	if !ok {
		c = &node{name: name, path: path, kind: types.KindDirectory}
		n.children[name] = c
	}
	return c
}

// Build converts entries into a forest. Missing intermediate directories
// are created, duplicate paths collapse into one node with the last kind
// seen, and a node that ends up with children is a directory regardless of
// its recorded kind.
func Build(entries []types.FileEntry, opts ...Option) []*types.FileNode {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	root := &node{}
	for _, e := range entries {
		p := utils.CleanPath(e.Path)
		if p == "" || o.ignored(p) {
			continue
		}

		segments := strings.Split(p, "/")
		cur := root
		for i, seg := range segments {
			cur = cur.child(seg, strings.Join(segments[:i+1], "/"))
		}
		cur.kind = e.Kind
	}

	return convert(root)
}

func (o *options) ignored(p string) bool {
	if len(o.ignore) == 0 {
		return false
	}
	// Check the path and every ancestor so an ignored directory hides its subtree
	for i := 0; i <= len(p); i++ {
		if i < len(p) && p[i] != '/' {
			continue
		}
		prefix := p[:i]
		for _, g := range o.ignore {
			if match(g, prefix) || match(g, prefix+"/") {
				return true
			}
		}
	}
	return false
}

func match(pattern, p string) bool {
	ok, err := doublestar.Match(pattern, p)
	return err == nil && ok
}

func convert(n *node) []*types.FileNode {
	out := make([]*types.FileNode, 0, len(n.children))
	for _, c := range n.children {
		fn := &types.FileNode{Path: c.path, Name: c.name, Kind: c.kind}
		if len(c.children) > 0 {
			fn.Kind = types.KindDirectory
		}
		if fn.Kind == types.KindDirectory {
			fn.Children = convert(c)
		}
		out = append(out, fn)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return strings.Compare(a.Name, b.Name) < 0
	})
	return out
}
