package naming

import (
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
)

// replicate implements read-driven replication (spec.md §4.6.4): it
// re-acquires p exclusively (GetStorage already released its shared
// lock before calling this, since §5 only license network I/O under
// a lock for the node the I/O concerns), picks one registered storage
// server not already holding a replica, and has it copy the file from
// an existing replica.
func (s *Server) replicate(p dpath.Path) {
	lp, err := s.acquire(p, exclusive)
	if err != nil {
		log.WithFields(log.Fields{"path": p.String(), "error": err}).
			Warning("replicate: could not re-acquire path, skipping")
		return
	}
	defer lp.release()

	target := lp.target
	if target.isDirectory || target.lock.readCount() < s.replicationThreshold {
		return
	}

	existing := target.replicaList()
	if len(existing) == 0 {
		return
	}
	candidate, ok := s.unreplicatedStorage(target)
	if !ok {
		log.WithField("path", p.String()).Debug("replicate: no spare storage server available")
		target.lock.resetReadCount()
		return
	}

	source := existing[s.randomIndex(len(existing))]
	cmd := s.commandFor(candidate)
	copied, err := cmd.Copy(p, source)
	if err != nil {
		log.WithFields(log.Fields{"path": p.String(), "storage": candidate.String(), "error": err}).
			Warning("replicate: copy failed, leaving replica set unchanged")
		target.lock.resetReadCount()
		return
	}
	if copied {
		target.replicas[candidate] = struct{}{}
	}
	target.lock.resetReadCount()
}

// unreplicatedStorage returns a registered storage server that does
// not already hold a replica of target, if one exists.
func (s *Server) unreplicatedStorage(target *node) (dfsapi.StorageStub, bool) {
	s.regMu.Lock()
	var candidates []dfsapi.StorageStub
	for stub := range s.storageToCmd {
		if _, already := target.replicas[stub]; !already {
			candidates = append(candidates, stub)
		}
	}
	s.regMu.Unlock()
	if len(candidates) == 0 {
		return dfsapi.StorageStub{}, false
	}
	return candidates[s.randomIndex(len(candidates))], true
}

// invalidate implements write-driven invalidation (spec.md §4.6.4):
// called with target already held under its own exclusive lock by
// the caller (Lock, for the advisory multi-op API), it retains one
// replica and deletes the file on every other one, fanning the delete
// calls out concurrently since none of them can deadlock against each
// other or against the held lock.
func (s *Server) invalidate(p dpath.Path, target *node) {
	replicas := target.replicaList()
	if len(replicas) <= 1 {
		return
	}
	keep := replicas[s.randomIndex(len(replicas))]

	var g errgroup.Group
	for _, r := range replicas {
		if r == keep {
			continue
		}
		r := r
		g.Go(func() error {
			cmd := s.commandFor(r)
			_, err := cmd.Delete(p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.WithFields(log.Fields{"path": p.String(), "error": err}).
			Warning("invalidate: one or more replica deletes failed, retaining tree state per inherited no-retry policy")
	}

	target.replicas = map[dfsapi.StorageStub]struct{}{keep: {}}
	target.lock.resetReadCount()
}
