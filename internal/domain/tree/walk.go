package tree

import (
	"errors"
	"strings"

	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

// SkipDir tells Walk not to descend into the current directory
var SkipDir = errors.New("skip this directory")

// WalkFunc is called for every node in depth-first order
type WalkFunc func(n *types.FileNode, depth int) error

// Walk visits the forest depth-first in display order. Returning SkipDir
// skips a directory's children; any other error stops the walk.
func Walk(forest []*types.FileNode, fn WalkFunc) error {
	err := walk(forest, 0, fn)
	if errors.Is(err, SkipDir) {
		return nil
	}
	return err
}

func walk(nodes []*types.FileNode, depth int, fn WalkFunc) error {
	for _, n := range nodes {
		if err := fn(n, depth); err != nil {
			if errors.Is(err, SkipDir) {
				continue
			}
			return err
		}
		if n.IsDir() {
			if err := walk(n.Children, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Find returns the node at path, or nil
func Find(forest []*types.FileNode, path string) *types.FileNode {
	if path == "" {
		return nil
	}
	nodes := forest
	var found *types.FileNode
	for _, seg := range strings.Split(path, "/") {
		found = nil
		for _, n := range nodes {
			if n.Name == seg {
				found = n
				break
			}
		}
		if found == nil {
			return nil
		}
		nodes = found.Children
	}
	return found
}

// Count returns the number of files and directories in the forest
func Count(forest []*types.FileNode) (files, dirs int) {
	_ = Walk(forest, func(n *types.FileNode, _ int) error {
		if n.IsDir() {
			dirs++
		} else {
			files++
		}
		return nil
	})
	return files, dirs
}

// Flatten lists every node as a FileEntry in display order
func Flatten(forest []*types.FileNode) []types.FileEntry {
	var out []types.FileEntry
	_ = Walk(forest, func(n *types.FileNode, _ int) error {
		out = append(out, types.FileEntry{Path: n.Path, Kind: n.Kind})
		return nil
	})
	return out
}
