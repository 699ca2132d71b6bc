// Package dfsapi declares the four remote interfaces of spec.md §6
// (Service, Registration, Storage, Command) and the per-interface
// stub/skeleton adapters that let naming server, storage server and
// client code talk to each other over internal/rmi without any of
// them depending on one another's packages.
package dfsapi

import (
	"github.com/lowmarsh/dfs/internal/dpath"
)

// Service is the client-facing interface exposed by the naming
// server: path queries, creation, deletion, storage lookup, and the
// advisory multi-path lock/unlock pair.
type Service interface {
	IsDirectory(p dpath.Path) (bool, error)
	List(p dpath.Path) ([]string, error)
	CreateFile(p dpath.Path) (bool, error)
	CreateDirectory(p dpath.Path) (bool, error)
	Delete(p dpath.Path) (bool, error)
	GetStorage(p dpath.Path) (StorageStub, error)
	Lock(p dpath.Path, exclusive bool) error
	Unlock(p dpath.Path, exclusive bool) error
}

// Registration is exposed by the naming server to storage servers
// only, for the one-shot join handshake.
type Registration interface {
	Register(client StorageStub, command CommandStub, paths []dpath.Path) ([]dpath.Path, error)
}

// Storage is the client-facing interface exposed by a storage server:
// byte-level access to a file's contents.
type Storage interface {
	Size(p dpath.Path) (int64, error)
	Read(p dpath.Path, offset int64, length int64) ([]byte, error)
	Write(p dpath.Path, offset int64, data []byte) error
}

// Command is exposed by a storage server to the naming server only:
// create/delete/copy primitives used to carry out registration
// pruning, file creation, subtree deletion, and replication.
type Command interface {
	Create(p dpath.Path) (bool, error)
	Delete(p dpath.Path) (bool, error)
	Copy(p dpath.Path, src StorageStub) (bool, error)
}
