package dfsapi

import "github.com/lowmarsh/dfs/internal/rmi"

// NewServiceSkeleton binds impl to the naming server's Service
// interface on network/address (":0"/"" for a system-chosen port).
func NewServiceSkeleton(impl Service, network, address string) (*rmi.Skeleton, error) {
	return rmi.NewSkeleton(serviceType, impl, network, address)
}

// NewRegistrationSkeleton binds impl to the naming server's
// Registration interface.
func NewRegistrationSkeleton(impl Registration, network, address string) (*rmi.Skeleton, error) {
	return rmi.NewSkeleton(registrationType, impl, network, address)
}

// NewStorageSkeleton binds impl to a storage server's client-facing
// Storage interface.
func NewStorageSkeleton(impl Storage, network, address string) (*rmi.Skeleton, error) {
	return rmi.NewSkeleton(storageType, impl, network, address)
}

// NewCommandSkeleton binds impl to a storage server's naming-facing
// Command interface.
func NewCommandSkeleton(impl Command, network, address string) (*rmi.Skeleton, error) {
	return rmi.NewSkeleton(commandType, impl, network, address)
}
