// Package dpath implements the immutable hierarchical path type shared
// by the naming server and storage server: an ordered sequence of
// non-empty components, none containing '/' or ':'. The empty
// sequence denotes the root.
package dpath

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/pkg/errors"
)

// Path is an immutable, ordered sequence of path components. The zero
// value is the root.
type Path struct {
	components []string
}

// Root returns the root path.
func Root() Path {
	return Path{}
}

// New parses a path string. It must begin with "/" and must not
// contain ":". Empty segments between slashes (e.g. "/a//b/") are
// dropped.
func New(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, errors.Wrapf(rmierr.ErrInvalidArgument, "path %q: must start with /", s)
	}
	if strings.Contains(s, ":") {
		return Path{}, errors.Wrapf(rmierr.ErrInvalidArgument, "path %q: must not contain :", s)
	}
	var components []string
	for _, part := range strings.Split(s, "/") {
		if part != "" {
			components = append(components, part)
		}
	}
	return Path{components: components}, nil
}

// MustNew is New, but panics on error. Intended for tests and
// compile-time constants.
func MustNew(s string) Path {
	p, err := New(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Child appends a single component to parent, producing a new Path.
// It fails with ErrInvalidArgument if component is empty or contains
// '/' or ':'.
func Child(parent Path, component string) (Path, error) {
	if component == "" {
		return Path{}, errors.Wrapf(rmierr.ErrInvalidArgument, "empty path component")
	}
	if strings.ContainsAny(component, "/:") {
		return Path{}, errors.Wrapf(rmierr.ErrInvalidArgument, "path component %q: must not contain / or :", component)
	}
	components := make([]string, len(parent.components)+1)
	copy(components, parent.components)
	components[len(parent.components)] = component
	return Path{components: components}, nil
}

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool {
	return len(p.components) == 0
}

// Parent returns p's parent. It fails with ErrInvalidArgument if p is
// root.
func (p Path) Parent() (Path, error) {
	if p.IsRoot() {
		return Path{}, errors.Wrapf(rmierr.ErrInvalidArgument, "root has no parent")
	}
	return Path{components: p.components[:len(p.components)-1]}, nil
}

// Last returns p's final component. It fails with ErrInvalidArgument
// if p is root.
func (p Path) Last() (string, error) {
	if p.IsRoot() {
		return "", errors.Wrapf(rmierr.ErrInvalidArgument, "root has no last component")
	}
	return p.components[len(p.components)-1], nil
}

// Components returns a defensive copy of p's components, root first.
func (p Path) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

// Iterate calls fn once for every ancestor path of p, from the root's
// first child down to (and including) p itself. It does not visit the
// root path. Iteration stops early if fn returns false.
func (p Path) Iterate(fn func(Path) bool) {
	for i := 1; i <= len(p.components); i++ {
		if !fn(Path{components: p.components[:i]}) {
			return
		}
	}
}

// IsSubpath reports whether other's components are a prefix of p's,
// i.e., p is other or a descendant of other.
func (p Path) IsSubpath(other Path) bool {
	if len(other.components) > len(p.components) {
		return false
	}
	for i, c := range other.components {
		if p.components[i] != c {
			return false
		}
	}
	return true
}

// Equal reports componentwise equality.
func (p Path) Equal(other Path) bool {
	return p.Compare(other) == 0
}

// Compare induces a total order under which ancestors precede
// descendants: lexicographic comparison of components, then
// shorter-is-smaller on a shared prefix.
func (p Path) Compare(other Path) int {
	n := len(p.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.components[i], other.components[i]); c != 0 {
			return c
		}
	}
	return len(p.components) - len(other.components)
}

// Hash returns an order-sensitive hash of p, suitable for use as a map
// key surrogate alongside String.
func (p Path) Hash() uint64 {
	h := fnv.New64a()
	for _, c := range p.components {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(c))
	}
	return h.Sum64()
}

// GobEncode and GobDecode let Path cross the RMI wire despite holding
// its components in an unexported field: gob only encodes exported
// struct fields, so without these methods every Path would decode as
// root.
func (p Path) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p.components); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Path) GobDecode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&p.components)
}

// String renders p in its canonical form: "/" for root, else "/" +
// components joined by "/".
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + strings.Join(p.components, "/")
}

// ToLocalFile concatenates p onto rootDir using the host's path
// separator conventions.
func (p Path) ToLocalFile(rootDir string) string {
	parts := append([]string{rootDir}, p.components...)
	return filepath.Join(parts...)
}

// List recursively enumerates rootDir, returning one relative Path per
// file found beneath it; directories themselves (rootDir included) are
// not listed. It fails with ErrNotFound if rootDir does not exist, and
// ErrInvalidArgument if it exists but is not a directory.
func List(rootDir string) ([]Path, error) {
	fi, err := os.Stat(rootDir)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(rmierr.ErrNotFound, "list %q", rootDir)
	}
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.Wrapf(rmierr.ErrInvalidArgument, "list %q: not a directory", rootDir)
	}
	var out []Path
	err = filepath.Walk(rootDir, func(fullPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fullPath == rootDir {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootDir, fullPath)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		p := Path{components: segments}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", rootDir, err)
	}
	return out, nil
}
