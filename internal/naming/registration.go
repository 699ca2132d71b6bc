package naming

import (
	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/pkg/errors"
)

// Register implements dfsapi.Registration (spec.md §4.6.6). It locks
// the root exclusively for the whole handshake, which is also what
// serializes register against every other service operation (they all
// begin by acquiring the root in shared mode as the first ancestor).
func (s *Server) Register(client dfsapi.StorageStub, command dfsapi.CommandStub, paths []dpath.Path) ([]dpath.Path, error) {
	if (client == dfsapi.StorageStub{}) || (command == dfsapi.CommandStub{}) {
		return nil, errors.Wrapf(rmierr.ErrNullArgument, "register: stub argument required")
	}

	lp, err := s.acquire(dpath.Root(), exclusive)
	if err != nil {
		return nil, err
	}
	defer lp.release()

	s.regMu.Lock()
	if _, known := s.storageToCmd[client]; known {
		s.regMu.Unlock()
		return nil, errors.Wrapf(rmierr.ErrIllegalState, "register: %s already registered", client.String())
	}
	s.storageToCmd[client] = command
	s.regMu.Unlock()

	var deleteLocally []dpath.Path
	for _, p := range paths {
		if p.IsRoot() {
			continue
		}
		cur := lp.target
		comps := p.Components()
		for i, name := range comps {
			if i == len(comps)-1 {
				if _, exists := cur.child(name); exists {
					deleteLocally = append(deleteLocally, p)
				} else {
					leaf := newNode(name, cur, false)
					leaf.replicas[client] = struct{}{}
					cur.addChild(leaf)
				}
				break
			}
			cur = cur.childOrCreateDir(name)
		}
	}
	return deleteLocally, nil
}
