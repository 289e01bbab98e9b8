// Package codestore is the client side of the code-storage collaborator: it
// lists and reads the files of a course baseline repository or a submission.
// Listings are eventually consistent and may report pending or failed.
package codestore

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/panbanda/klone/pkg/models"
)

// ErrNotFound is returned when a file or entity does not exist.
var ErrNotFound = errors.New("not found")

// Status is the readiness of an entity's files.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// FileNode is a file or directory in a listing.
type FileNode struct {
	Name     string      `json:"name"`
	Dir      bool        `json:"dir,omitempty"`
	Children []*FileNode `json:"children,omitempty"`
}

// Paths returns the slash-separated paths of every file below n, sorted.
func (n *FileNode) Paths() []string {
	if n == nil {
		return nil
	}
	var out []string
	var walk func(node *FileNode, prefix string)
	walk = func(node *FileNode, prefix string) {
		p := node.Name
		if prefix != "" {
			p = path.Join(prefix, node.Name)
		}
		if !node.Dir {
			out = append(out, p)
			return
		}
		for _, c := range node.Children {
			walk(c, p)
		}
	}
	for _, c := range n.Children {
		walk(c, "")
	}
	if !n.Dir && n.Name != "" {
		out = append(out, n.Name)
	}
	sort.Strings(out)
	return out
}

// TreeFromPaths builds a directory tree holding paths.
func TreeFromPaths(paths []string) *FileNode {
	root := &FileNode{Dir: true}
	for _, p := range paths {
		parts := strings.Split(strings.Trim(p, "/"), "/")
		cur := root
		for i, part := range parts {
			if part == "" {
				continue
			}
			last := i == len(parts)-1
			var next *FileNode
			for _, c := range cur.Children {
				if c.Name == part && c.Dir != last {
					next = c
					break
				}
			}
			if next == nil {
				next = &FileNode{Name: part, Dir: !last}
				cur.Children = append(cur.Children, next)
			}
			cur = next
		}
	}
	return root
}

// Listing is the answer to a list call. Root is set when Status is done.
type Listing struct {
	Status Status    `json:"status"`
	Root   *FileNode `json:"root,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Store lists and reads entity files.
type Store interface {
	List(ctx context.Context, ref models.EntityRef) (Listing, error)
	Read(ctx context.Context, ref models.EntityRef, path string) (string, error)
}

// Locator resolves where an entity's repository lives.
type Locator interface {
	Locate(ctx context.Context, ref models.EntityRef) (url, revision string, err error)
}

// cleanPath rejects absolute paths and paths escaping the entity root.
func cleanPath(p string) (string, error) {
	c := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	c = strings.TrimPrefix(c, "/")
	if c == "" || c == "." {
		return "", ErrNotFound
	}
	return c, nil
}
