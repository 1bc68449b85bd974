package engine

import (
	"path"
	"slices"
	"strings"
)

// Node is one element of the hierarchy reconstructed from entry paths.
type Node struct {
	Name     string  `json:"name" yaml:"name"`
	Path     string  `json:"path" yaml:"path"`
	Dir      bool    `json:"dir" yaml:"dir"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// BuildTree reconstructs the directory hierarchy implied by entry paths.
// Children are sorted with directories first.
func BuildTree(paths []string) *Node {
	root := &Node{Dir: true}
	dirs := map[string]*Node{"": root}

	var ensureDir func(p string) *Node
	ensureDir = func(p string) *Node {
		if n, ok := dirs[p]; ok {
			return n
		}
		parent := ensureDir(parentDir(p))
		n := &Node{Name: path.Base(p), Path: p, Dir: true}
		parent.Children = append(parent.Children, n)
		dirs[p] = n
		return n
	}

	for _, p := range paths {
		p = NormalizePath(p)
		if p == "" {
			continue
		}
		parent := ensureDir(parentDir(p))
		parent.Children = append(parent.Children, &Node{Name: path.Base(p), Path: p})
	}

	sortTree(root)
	return root
}

// Walk visits n and its descendants depth first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Directories returns every directory implied by a prefix of any path, sorted.
func Directories(paths []string) []string {
	seen := make(map[string]struct{})
	for _, p := range paths {
		for dir := parentDir(NormalizePath(p)); dir != ""; dir = parentDir(dir) {
			seen[dir] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

func parentDir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

func sortTree(n *Node) {
	slices.SortFunc(n.Children, func(a, b *Node) int {
		if a.Dir != b.Dir {
			if a.Dir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	for _, c := range n.Children {
		sortTree(c)
	}
}
