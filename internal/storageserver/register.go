package storageserver

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/pkg/errors"
)

// Start implements the registration handshake of spec.md §4.5: it
// validates the root, starts both skeletons, builds stubs addressed
// via hostname, enumerates the root's files, registers with the
// naming server, and prunes whatever the naming server reports as
// already known.
func (s *Server) Start(hostname, storageAddr, commandAddr, namingRegistrationAddr string) error {
	fi, err := os.Stat(s.rootDir)
	if os.IsNotExist(err) {
		return errors.Wrapf(rmierr.ErrNotFound, "storage root %q does not exist", s.rootDir)
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return errors.Wrapf(rmierr.ErrNotFound, "storage root %q is a regular file", s.rootDir)
	}

	storageSk, err := dfsapi.NewStorageSkeleton(s, "tcp", storageAddr)
	if err != nil {
		return err
	}
	if err := storageSk.Start(); err != nil {
		return err
	}
	commandSk, err := dfsapi.NewCommandSkeleton(s, "tcp", commandAddr)
	if err != nil {
		storageSk.Stop()
		return err
	}
	if err := commandSk.Start(); err != nil {
		storageSk.Stop()
		return err
	}

	storageStub, err := dfsapi.NewStorageStubFromSkeletonWithHost(storageSk, hostname)
	if err != nil {
		storageSk.Stop()
		commandSk.Stop()
		return err
	}
	commandStub, err := dfsapi.NewCommandStubFromSkeletonWithHost(commandSk, hostname)
	if err != nil {
		storageSk.Stop()
		commandSk.Stop()
		return err
	}

	paths, err := dpath.List(s.rootDir)
	if err != nil {
		storageSk.Stop()
		commandSk.Stop()
		return err
	}

	regStub := dfsapi.NewRegistrationStub("tcp", namingRegistrationAddr)
	deleteLocally, err := regStub.Register(storageStub, commandStub, paths)
	if err != nil {
		storageSk.Stop()
		commandSk.Stop()
		return err
	}

	for _, p := range deleteLocally {
		local := p.ToLocalFile(s.rootDir)
		if err := os.Remove(local); err != nil {
			log.WithFields(log.Fields{"path": p.String(), "error": err}).
				Warning("register: could not delete duplicate reported by naming server")
			continue
		}
		s.pruneEmptyAncestors(filepath.Dir(local))
	}

	s.storageSkeleton = storageSk
	s.commandSkeleton = commandSk
	return nil
}

// pruneEmptyAncestors removes now-empty directories from dir upward,
// stopping at (not including) the server's root.
func (s *Server) pruneEmptyAncestors(dir string) {
	root := filepath.Clean(s.rootDir)
	for {
		dir = filepath.Clean(dir)
		if dir == root || len(dir) <= len(root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Stop stops both skeletons, if started.
func (s *Server) Stop() {
	if s.storageSkeleton != nil {
		s.storageSkeleton.Stop()
	}
	if s.commandSkeleton != nil {
		s.commandSkeleton.Stop()
	}
}

// Addresses returns the bound network/address of the storage and
// command skeletons respectively. Both fail with ErrIllegalState
// before Start succeeds.
func (s *Server) Addresses() (storageAddr, commandAddr string, err error) {
	if s.storageSkeleton == nil || s.commandSkeleton == nil {
		return "", "", errors.Wrapf(rmierr.ErrIllegalState, "storage server not started")
	}
	_, storageAddr, err = s.storageSkeleton.Address()
	if err != nil {
		return "", "", err
	}
	_, commandAddr, err = s.commandSkeleton.Address()
	if err != nil {
		return "", "", err
	}
	return storageAddr, commandAddr, nil
}
