// Package naming implements the naming server (C6): the directory
// tree, its per-node FIFO reader/writer locks, the storage-server
// registration index, and the read-driven replication / write-driven
// invalidation policy, behind the dfsapi.Service and
// dfsapi.Registration remote interfaces.
package naming

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/pkg/errors"
)

// DefaultReplicationThreshold is the sharedReadCount value from
// spec.md §4.6.4 that triggers read-driven replication.
const DefaultReplicationThreshold = 20

// Server owns the naming server's process-wide tree and registration
// index (spec.md §4.6.1). The zero value is not usable; construct one
// with NewServer.
type Server struct {
	root *node

	regMu        sync.Mutex
	storageToCmd map[dfsapi.StorageStub]dfsapi.CommandStub

	rngMu sync.Mutex
	rng   *rand.Rand

	replicationThreshold int

	advisoryMu sync.Mutex
	advisory   map[string]*lockedPath
}

// NewServer constructs an empty naming server tree with one root
// directory. threshold <= 0 selects DefaultReplicationThreshold.
func NewServer(threshold int) *Server {
	if threshold <= 0 {
		threshold = DefaultReplicationThreshold
	}
	return &Server{
		root:                 newNode("", nil, true),
		storageToCmd:         make(map[dfsapi.StorageStub]dfsapi.CommandStub),
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
		replicationThreshold: threshold,
		advisory:             make(map[string]*lockedPath),
	}
}

var _ dfsapi.Service = (*Server)(nil)
var _ dfsapi.Registration = (*Server)(nil)

// IsDirectory implements dfsapi.Service.
func (s *Server) IsDirectory(p dpath.Path) (bool, error) {
	lp, err := s.acquire(p, shared)
	if err != nil {
		return false, err
	}
	defer lp.release()
	return lp.target.isDirectory, nil
}

// List implements dfsapi.Service.
func (s *Server) List(p dpath.Path) ([]string, error) {
	lp, err := s.acquire(p, shared)
	if err != nil {
		return nil, err
	}
	defer lp.release()
	if !lp.target.isDirectory {
		return nil, errors.Wrapf(rmierr.ErrNotFound, "list %s: not a directory", p)
	}
	return lp.target.childNames(), nil
}

// CreateFile implements dfsapi.Service.
func (s *Server) CreateFile(p dpath.Path) (bool, error) {
	return s.create(p, false)
}

// CreateDirectory implements dfsapi.Service.
func (s *Server) CreateDirectory(p dpath.Path) (bool, error) {
	return s.create(p, true)
}

func (s *Server) create(p dpath.Path, isDirectory bool) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	parent, err := p.Parent()
	if err != nil {
		return false, err
	}
	leaf, err := p.Last()
	if err != nil {
		return false, err
	}

	lp, err := s.acquire(parent, exclusive)
	if err != nil {
		return false, err
	}
	defer lp.release()

	if !lp.target.isDirectory {
		return false, errors.Wrapf(rmierr.ErrNotFound, "create %s: parent is not a directory", p)
	}
	if _, exists := lp.target.child(leaf); exists {
		return false, nil
	}

	var chosen dfsapi.StorageStub
	if !isDirectory {
		var ok bool
		chosen, ok = s.randomStorage()
		if !ok {
			return false, errors.Wrapf(rmierr.ErrIllegalState, "create %s: no storage server registered", p)
		}
		cmd := s.commandFor(chosen)
		created, err := cmd.Create(p)
		if err != nil {
			return false, err
		}
		if !created {
			return false, nil
		}
	}

	child := newNode(leaf, lp.target, isDirectory)
	if !isDirectory {
		child.replicas[chosen] = struct{}{}
	}
	lp.target.addChild(child)
	return true, nil
}

// Delete implements dfsapi.Service. It gathers every replica handle
// in the subtree rooted at p, issues one delete per (replica, path)
// pair, then detaches p from its parent. Every replica delete is
// attempted even if an earlier one fails; the first failure is
// returned, with false, after p has been detached.
func (s *Server) Delete(p dpath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	lp, err := s.acquire(p, exclusive)
	if err != nil {
		return false, err
	}
	defer lp.release()

	type deletion struct {
		path  dpath.Path
		stub  dfsapi.StorageStub
	}
	var deletions []deletion
	var walk func(path dpath.Path, n *node)
	walk = func(path dpath.Path, n *node) {
		if n.isDirectory {
			for _, name := range n.childNames() {
				child, ok := n.child(name)
				if !ok {
					continue
				}
				childPath, _ := dpath.Child(path, name)
				walk(childPath, child)
			}
			return
		}
		for _, r := range n.replicaList() {
			deletions = append(deletions, deletion{path: path, stub: r})
		}
	}
	walk(p, lp.target)

	var firstErr error
	for _, d := range deletions {
		cmd := s.commandFor(d.stub)
		if _, err := cmd.Delete(d.path); err != nil {
			log.WithFields(log.Fields{"path": d.path.String(), "storage": d.stub.String()}).
				Warning("delete: replica delete failed, continuing per inherited no-retry policy")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	leaf, _ := p.Last()
	lp.target.parent.removeChild(leaf)
	lp.target.parent = nil
	if firstErr != nil {
		return false, firstErr
	}
	return true, nil
}

// GetStorage implements dfsapi.Service.
func (s *Server) GetStorage(p dpath.Path) (dfsapi.StorageStub, error) {
	lp, err := s.acquire(p, shared)
	if err != nil {
		return dfsapi.StorageStub{}, err
	}
	if lp.target.isDirectory {
		lp.release()
		return dfsapi.StorageStub{}, errors.Wrapf(rmierr.ErrNotFound, "getStorage %s: is a directory", p)
	}
	replicas := lp.target.replicaList()
	if len(replicas) == 0 {
		lp.release()
		return dfsapi.StorageStub{}, errors.Wrapf(rmierr.ErrNotFound, "getStorage %s: no replicas", p)
	}
	chosen := replicas[s.randomIndex(len(replicas))]
	count := lp.target.lock.readCount()
	lp.release()

	if count >= s.replicationThreshold {
		go s.replicate(p)
	}
	return chosen, nil
}

// Lock implements dfsapi.Service's advisory multi-op lock. Because
// every RMI call is its own stateless connection (spec.md §4.2), the
// server records the held chain keyed by the path string so a later,
// independent Unlock call can find and release it; this is the
// simplest bridge the wire contract allows, since neither Lock nor
// Unlock carries a session token.
func (s *Server) Lock(p dpath.Path, exclusiveMode bool) error {
	mode := shared
	if exclusiveMode {
		mode = exclusive
	}
	lp, err := s.acquire(p, mode)
	if err != nil {
		return err
	}

	if exclusiveMode && !lp.target.isDirectory {
		s.invalidate(p, lp.target)
	}

	key := advisoryKey(p, exclusiveMode)
	s.advisoryMu.Lock()
	if _, held := s.advisory[key]; held {
		s.advisoryMu.Unlock()
		lp.release()
		return errors.Wrapf(rmierr.ErrIllegalState, "lock %s: already held by this advisory key", p)
	}
	s.advisory[key] = lp
	s.advisoryMu.Unlock()
	return nil
}

// Unlock implements dfsapi.Service's advisory unlock.
func (s *Server) Unlock(p dpath.Path, exclusiveMode bool) error {
	key := advisoryKey(p, exclusiveMode)
	s.advisoryMu.Lock()
	lp, held := s.advisory[key]
	delete(s.advisory, key)
	s.advisoryMu.Unlock()
	if !held {
		return errors.Wrapf(rmierr.ErrIllegalState, "unlock %s: not held", p)
	}
	lp.release()
	return nil
}

func advisoryKey(p dpath.Path, exclusiveMode bool) string {
	if exclusiveMode {
		return "x:" + p.String()
	}
	return "s:" + p.String()
}

func (s *Server) commandFor(stub dfsapi.StorageStub) dfsapi.CommandStub {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return s.storageToCmd[stub]
}

func (s *Server) randomStorage() (dfsapi.StorageStub, bool) {
	s.regMu.Lock()
	stubs := make([]dfsapi.StorageStub, 0, len(s.storageToCmd))
	for stub := range s.storageToCmd {
		stubs = append(stubs, stub)
	}
	s.regMu.Unlock()
	if len(stubs) == 0 {
		return dfsapi.StorageStub{}, false
	}
	return stubs[s.randomIndex(len(stubs))], true
}

func (s *Server) randomIndex(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}
