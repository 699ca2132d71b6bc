package naming

import (
	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/pkg/errors"
)

// lockedPath is the result of acquiring a path under the protocol of
// spec.md §4.6.3: every proper ancestor of target, root first, held
// shared, then target itself held in the requested mode.
type lockedPath struct {
	ancestors []*node // root first, target's immediate parent last
	target    *node
	mode      lockMode
}

// release unlocks target and then every ancestor in exact reverse
// acquisition order, per §4.6.3 ("unlock traverses in exact reverse").
func (lp *lockedPath) release() {
	lp.target.lock.unlock()
	for i := len(lp.ancestors) - 1; i >= 0; i-- {
		lp.ancestors[i].lock.unlock()
	}
}

// acquire locks p in mode, returning the full chain so the caller can
// release it when done. Fails with ErrNotFound if any component of p
// (including p itself) does not exist in the tree.
func (s *Server) acquire(p dpath.Path, mode lockMode) (*lockedPath, error) {
	if p.IsRoot() {
		s.root.lock.lock(mode)
		return &lockedPath{target: s.root, mode: mode}, nil
	}

	s.root.lock.lock(shared)
	ancestors := []*node{s.root}
	cur := s.root
	comps := p.Components()
	for i, name := range comps {
		last := i == len(comps)-1
		next, ok := cur.child(name)
		if !ok {
			releaseChain(ancestors)
			return nil, errors.Wrapf(rmierr.ErrNotFound, "path %s", p)
		}
		if last {
			next.lock.lock(mode)
			return &lockedPath{ancestors: ancestors, target: next, mode: mode}, nil
		}
		next.lock.lock(shared)
		ancestors = append(ancestors, next)
		cur = next
	}
	panic("unreachable: non-root path with zero components")
}

// releaseChain unlocks a (possibly partial) ancestor chain in reverse
// order, used when acquire fails partway through.
func releaseChain(ancestors []*node) {
	for i := len(ancestors) - 1; i >= 0; i-- {
		ancestors[i].lock.unlock()
	}
}
