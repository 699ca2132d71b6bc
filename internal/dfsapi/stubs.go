package dfsapi

import (
	"reflect"

	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/lowmarsh/dfs/internal/rmi"
)

var (
	serviceType      = reflect.TypeOf((*Service)(nil)).Elem()
	registrationType = reflect.TypeOf((*Registration)(nil)).Elem()
	storageType      = reflect.TypeOf((*Storage)(nil)).Elem()
	commandType      = reflect.TypeOf((*Command)(nil)).Elem()

	serviceDescriptor      *rmi.InterfaceDescriptor
	registrationDescriptor *rmi.InterfaceDescriptor
	storageDescriptor      *rmi.InterfaceDescriptor
	commandDescriptor      *rmi.InterfaceDescriptor
)

func mustDescribe(t reflect.Type) *rmi.InterfaceDescriptor {
	d, err := rmi.Describe(t)
	if err != nil {
		panic(err)
	}
	return d
}

func init() {
	serviceDescriptor = mustDescribe(serviceType)
	registrationDescriptor = mustDescribe(registrationType)
	storageDescriptor = mustDescribe(storageType)
	commandDescriptor = mustDescribe(commandType)

	rmi.RegisterType(dpath.Path{})
	rmi.RegisterType([]dpath.Path(nil))
	rmi.RegisterType(StorageStub{})
	rmi.RegisterType(CommandStub{})
	rmi.RegisterType(ServiceStub{})
}

// ServiceStub is the client-side proxy for the naming server's Service
// interface.
type ServiceStub struct {
	rmi.StubBase
}

// NewServiceStub is factory form 3 of spec.md §4.4: an explicit
// network/address pair.
func NewServiceStub(network, address string) ServiceStub {
	return ServiceStub{StubBase: rmi.NewStub(serviceDescriptor.Name, network, address)}
}

// NewServiceStubFromSkeleton is factory form 1: copies a bound
// Skeleton's address.
func NewServiceStubFromSkeleton(sk *rmi.Skeleton) (ServiceStub, error) {
	base, err := rmi.NewStubFromSkeleton(serviceDescriptor.Name, sk)
	if err != nil {
		return ServiceStub{}, err
	}
	return ServiceStub{StubBase: base}, nil
}

// NewServiceStubFromSkeletonWithHost is factory form 2: a bound
// Skeleton's port with an alternative hostname, e.g. for NAT
// traversal.
func NewServiceStubFromSkeletonWithHost(sk *rmi.Skeleton, hostname string) (ServiceStub, error) {
	base, err := rmi.NewStubFromSkeletonWithHost(serviceDescriptor.Name, sk, hostname)
	if err != nil {
		return ServiceStub{}, err
	}
	return ServiceStub{StubBase: base}, nil
}

func (s ServiceStub) IsDirectory(p dpath.Path) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "IsDirectory"), []interface{}{p})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s ServiceStub) List(p dpath.Path) ([]string, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "List"), []interface{}{p})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]string), nil
}

func (s ServiceStub) CreateFile(p dpath.Path) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "CreateFile"), []interface{}{p})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s ServiceStub) CreateDirectory(p dpath.Path) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "CreateDirectory"), []interface{}{p})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s ServiceStub) Delete(p dpath.Path) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "Delete"), []interface{}{p})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s ServiceStub) GetStorage(p dpath.Path) (StorageStub, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "GetStorage"), []interface{}{p})
	if err != nil {
		return StorageStub{}, err
	}
	return v.(StorageStub), nil
}

func (s ServiceStub) Lock(p dpath.Path, exclusive bool) error {
	_, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "Lock"), []interface{}{p, exclusive})
	return err
}

func (s ServiceStub) Unlock(p dpath.Path, exclusive bool) error {
	_, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(serviceDescriptor, "Unlock"), []interface{}{p, exclusive})
	return err
}

// RegistrationStub is the client-side proxy used by a storage server
// to register itself with the naming server.
type RegistrationStub struct {
	rmi.StubBase
}

func NewRegistrationStub(network, address string) RegistrationStub {
	return RegistrationStub{StubBase: rmi.NewStub(registrationDescriptor.Name, network, address)}
}

func (s RegistrationStub) Register(client StorageStub, command CommandStub, paths []dpath.Path) ([]dpath.Path, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(registrationDescriptor, "Register"), []interface{}{client, command, paths})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]dpath.Path), nil
}

// StorageStub is the client-side proxy for a storage server's Storage
// interface. It is itself serializable (a plain value type) so it can
// be returned from GetStorage and passed to Register.
type StorageStub struct {
	rmi.StubBase
}

func NewStorageStub(network, address string) StorageStub {
	return StorageStub{StubBase: rmi.NewStub(storageDescriptor.Name, network, address)}
}

func NewStorageStubFromSkeleton(sk *rmi.Skeleton) (StorageStub, error) {
	base, err := rmi.NewStubFromSkeleton(storageDescriptor.Name, sk)
	if err != nil {
		return StorageStub{}, err
	}
	return StorageStub{StubBase: base}, nil
}

func NewStorageStubFromSkeletonWithHost(sk *rmi.Skeleton, hostname string) (StorageStub, error) {
	base, err := rmi.NewStubFromSkeletonWithHost(storageDescriptor.Name, sk, hostname)
	if err != nil {
		return StorageStub{}, err
	}
	return StorageStub{StubBase: base}, nil
}

func (s StorageStub) Size(p dpath.Path) (int64, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(storageDescriptor, "Size"), []interface{}{p})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s StorageStub) Read(p dpath.Path, offset, length int64) ([]byte, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(storageDescriptor, "Read"), []interface{}{p, offset, length})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]byte), nil
}

func (s StorageStub) Write(p dpath.Path, offset int64, data []byte) error {
	_, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(storageDescriptor, "Write"), []interface{}{p, offset, data})
	return err
}

// CommandStub is the client-side proxy for a storage server's Command
// interface, used only by the naming server.
type CommandStub struct {
	rmi.StubBase
}

func NewCommandStub(network, address string) CommandStub {
	return CommandStub{StubBase: rmi.NewStub(commandDescriptor.Name, network, address)}
}

func NewCommandStubFromSkeleton(sk *rmi.Skeleton) (CommandStub, error) {
	base, err := rmi.NewStubFromSkeleton(commandDescriptor.Name, sk)
	if err != nil {
		return CommandStub{}, err
	}
	return CommandStub{StubBase: base}, nil
}

func NewCommandStubFromSkeletonWithHost(sk *rmi.Skeleton, hostname string) (CommandStub, error) {
	base, err := rmi.NewStubFromSkeletonWithHost(commandDescriptor.Name, sk, hostname)
	if err != nil {
		return CommandStub{}, err
	}
	return CommandStub{StubBase: base}, nil
}

func (s CommandStub) Create(p dpath.Path) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(commandDescriptor, "Create"), []interface{}{p})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s CommandStub) Delete(p dpath.Path) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(commandDescriptor, "Delete"), []interface{}{p})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s CommandStub) Copy(p dpath.Path, src StorageStub) (bool, error) {
	v, err := rmi.Invoke(s.StubBase, rmi.DescribeMethod(commandDescriptor, "Copy"), []interface{}{p, src})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
