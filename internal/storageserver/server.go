// Package storageserver implements the storage server (C5): a
// file-operations engine rooted at a local directory, exposed over
// the dfsapi.Storage (client-facing) and dfsapi.Command
// (naming-server-facing) remote interfaces, plus the registration
// handshake that announces the server to a naming server at startup.
package storageserver

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/lowmarsh/dfs/internal/rmi"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/pkg/errors"
)

// Mirror is an optional secondary persistence tier a Server writes
// through to, grounded on the teacher's paired fast/slow store shape
// but one-directional: the local root remains the sole read path, so
// this does not change the Storage/Command wire contract at all.
type Mirror interface {
	Put(relPath string, data []byte) error
	Delete(relPath string) error
}

// Server owns one local root directory and answers size/read/write
// (Storage) and create/delete/copy (Command) calls against it. All
// operations are synchronized per spec.md §4.5 by a single mutex
// around the entire filesystem view: acceptable because the naming
// server already enforces per-path locking at a coarser level.
type Server struct {
	mu      sync.Mutex
	rootDir string
	mirror  Mirror

	storageSkeleton *rmi.Skeleton
	commandSkeleton *rmi.Skeleton
}

// NewServer constructs a storage server rooted at rootDir. Start
// performs the existence/directory validation spec.md §4.5 requires.
func NewServer(rootDir string) *Server {
	return &Server{rootDir: rootDir}
}

// SetMirror installs an optional write-through secondary tier.
func (s *Server) SetMirror(m Mirror) {
	s.mirror = m
}

var _ dfsapi.Storage = (*Server)(nil)
var _ dfsapi.Command = (*Server)(nil)

func (s *Server) localPath(p dpath.Path) string {
	return p.ToLocalFile(s.rootDir)
}

// Size implements dfsapi.Storage.
func (s *Server) Size(p dpath.Path) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLocked(p)
}

func (s *Server) sizeLocked(p dpath.Path) (int64, error) {
	if p.IsRoot() {
		return 0, errors.Wrapf(rmierr.ErrNotFound, "size: %s is the root", p)
	}
	fi, err := os.Stat(s.localPath(p))
	if os.IsNotExist(err) {
		return 0, errors.Wrapf(rmierr.ErrNotFound, "size: %s", p)
	}
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, errors.Wrapf(rmierr.ErrNotFound, "size: %s is a directory", p)
	}
	return fi.Size(), nil
}

// Read implements dfsapi.Storage.
func (s *Server) Read(p dpath.Path, offset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := s.sizeLocked(p)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > size {
		return nil, errors.Wrapf(rmierr.ErrOutOfBounds, "read: %s offset=%d length=%d size=%d", p, offset, length, size)
	}

	f, err := os.Open(s.localPath(p))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(io.NewSectionReader(f, offset, length), buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Write implements dfsapi.Storage. If offset is beyond the file's
// current size, the gap is zero-filled by truncating the file to
// offset before writing, so the size grows to offset+len(data) —
// spec.md §9's resolution of the
// open question of what "write past the end" should do.
func (s *Server) Write(p dpath.Path, offset int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(p, offset, data)
}

func (s *Server) writeLocked(p dpath.Path, offset int64, data []byte) error {
	if offset < 0 {
		return errors.Wrapf(rmierr.ErrOutOfBounds, "write: %s offset=%d", p, offset)
	}
	size, err := s.sizeLocked(p)
	if err != nil {
		return err
	}

	local := s.localPath(p)
	f, err := os.OpenFile(local, os.O_RDWR, 0o666)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if offset > size {
		if err := f.Truncate(offset); err != nil {
			return err
		}
	}
	if len(data) > 0 {
		if _, err := f.WriteAt(data, offset); err != nil {
			return err
		}
	}

	if s.mirror != nil {
		full, err := os.ReadFile(local)
		if err != nil {
			log.WithFields(log.Fields{"path": p.String(), "error": err}).
				Warning("write: could not reread file for mirror write-through")
		} else if err := s.mirror.Put(p.String(), full); err != nil {
			log.WithFields(log.Fields{"path": p.String(), "error": err}).
				Warning("write: mirror write-through failed")
		}
	}
	return nil
}

// Create implements dfsapi.Command.
func (s *Server) Create(p dpath.Path) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(p)
}

func (s *Server) createLocked(p dpath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	local := s.localPath(p)
	if _, err := os.Stat(local); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o777); err != nil {
		return false, err
	}
	f, err := os.OpenFile(local, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, f.Close()
}

// Delete implements dfsapi.Command. It recursively removes the
// subtree at p.
func (s *Server) Delete(p dpath.Path) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(p)
}

func (s *Server) deleteLocked(p dpath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	local := s.localPath(p)
	if _, err := os.Stat(local); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(local); err != nil {
		return false, err
	}
	if s.mirror != nil {
		if err := s.mirror.Delete(p.String()); err != nil {
			log.WithFields(log.Fields{"path": p.String(), "error": err}).
				Warning("delete: mirror delete failed")
		}
	}
	return true, nil
}

// Copy implements dfsapi.Command: it pulls src's bytes for p and
// replaces the local file, atomically from the caller's perspective,
// via the delete-then-create-then-write sequence spec.md §4.5
// specifies.
func (s *Server) Copy(p dpath.Path, src dfsapi.StorageStub) (bool, error) {
	size, err := src.Size(p)
	if err != nil {
		return false, err
	}
	data, err := src.Read(p, 0, size)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.deleteLocked(p); err != nil {
		return false, err
	}
	if _, err := s.createLocked(p); err != nil {
		return false, err
	}
	if err := s.writeLocked(p, 0, data); err != nil {
		return false, err
	}
	return true, nil
}
