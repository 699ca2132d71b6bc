package naming

import (
	"sort"
	"sync"

	"github.com/lowmarsh/dfs/internal/dfsapi"
)

// node is one entry in the naming server's in-memory tree. Per
// spec.md §3, parent is a non-owning back-reference: nodes are owned
// by their parent's children container and parent is cleared when a
// node is detached.
type node struct {
	name        string
	parent      *node
	isDirectory bool

	// childrenMu guards children independently of lock: lock
	// implements the spec's logical path-prefix reader/writer
	// protocol, but concurrent Go map access to children still needs
	// its own guard regardless of which logical mode a caller holds a
	// node under (a shared holder of a directory may be racing a
	// create/delete that structurally mutates that same directory's
	// children, since the spec locks the created/deleted node, not
	// always its parent, exclusively).
	childrenMu sync.RWMutex
	children   map[string]*node

	// replicas is unordered per spec.md §3; empty for directories.
	replicas map[dfsapi.StorageStub]struct{}

	lock *nodeLock
}

func newNode(name string, parent *node, isDirectory bool) *node {
	n := &node{
		name:        name,
		parent:      parent,
		isDirectory: isDirectory,
		lock:        newNodeLock(),
	}
	if isDirectory {
		n.children = make(map[string]*node)
	} else {
		n.replicas = make(map[dfsapi.StorageStub]struct{})
	}
	return n
}

// child looks up name among n's children. Safe for concurrent callers
// holding any logical lock mode on n.
func (n *node) child(name string) (*node, bool) {
	n.childrenMu.RLock()
	defer n.childrenMu.RUnlock()
	c, ok := n.children[name]
	return c, ok
}

// childNames returns n's child names in sorted order, for a
// deterministic list() result.
func (n *node) childNames() []string {
	n.childrenMu.RLock()
	defer n.childrenMu.RUnlock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// addChild inserts c under n keyed by c.name. The caller is
// responsible for having ruled out a name collision (checked while
// holding childrenMu.Lock to avoid a check-then-act race).
func (n *node) addChild(c *node) {
	n.childrenMu.Lock()
	defer n.childrenMu.Unlock()
	n.children[c.name] = c
}

// removeChild detaches the child named name, if present.
func (n *node) removeChild(name string) {
	n.childrenMu.Lock()
	defer n.childrenMu.Unlock()
	delete(n.children, name)
}

// childOrCreateDir returns the child named name, creating it as a
// directory if absent. Used by register's ancestor materialization,
// which runs under the naming server's root exclusive lock so no
// concurrent structural mutation of n can be in flight.
func (n *node) childOrCreateDir(name string) *node {
	n.childrenMu.Lock()
	defer n.childrenMu.Unlock()
	if c, ok := n.children[name]; ok {
		return c
	}
	c := newNode(name, n, true)
	n.children[name] = c
	return c
}

// replicaList returns a snapshot slice of n's current replicas. n must
// be a file node.
func (n *node) replicaList() []dfsapi.StorageStub {
	out := make([]dfsapi.StorageStub, 0, len(n.replicas))
	for r := range n.replicas {
		out = append(out, r)
	}
	return out
}
