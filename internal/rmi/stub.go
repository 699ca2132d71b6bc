package rmi

import (
	"fmt"
	"hash/fnv"
	"net"
	"time"

	"github.com/lowmarsh/dfs/internal/rmierr"
)

// dialTimeout bounds how long a Stub waits to establish the
// per-call TCP connection.
const dialTimeout = 10 * time.Second

// StubBase is embedded by every per-interface stub type (StorageStub,
// CommandStub, ServiceStub, RegistrationStub). It holds the bound
// address and interface name and answers the three methods the
// spec requires to be serviced locally without dialing the network:
// equality, hashing and String.
//
// Go has no runtime facility for implementing an arbitrary interface
// dynamically the way a Java dynamic proxy does (spec.md §9's design
// note anticipates this and asks for per-interface generated
// adapters); each remote interface therefore gets a small,
// hand-written stub type that embeds StubBase and forwards its
// methods to Invoke, the single generic call path below.
type StubBase struct {
	InterfaceName string
	Network       string
	Address       string
}

// NewStubFromSkeleton is factory form 1 of spec.md §4.4: copies the
// address of a bound Skeleton. It fails with ErrIllegalState if the
// skeleton has no address yet.
func NewStubFromSkeleton(ifaceName string, sk *Skeleton) (StubBase, error) {
	network, address, err := sk.Address()
	if err != nil {
		return StubBase{}, err
	}
	return StubBase{InterfaceName: ifaceName, Network: network, Address: address}, nil
}

// NewStubFromSkeletonWithHost is factory form 2: uses the skeleton's
// port with an alternative hostname, e.g. for NAT traversal.
func NewStubFromSkeletonWithHost(ifaceName string, sk *Skeleton, hostname string) (StubBase, error) {
	network, address, err := sk.Address()
	if err != nil {
		return StubBase{}, err
	}
	_, port, splitErr := net.SplitHostPort(address)
	if splitErr != nil {
		return StubBase{}, fmt.Errorf("rmi.NewStubFromSkeletonWithHost: %w", splitErr)
	}
	return StubBase{InterfaceName: ifaceName, Network: network, Address: net.JoinHostPort(hostname, port)}, nil
}

// NewStub is factory form 3: an explicit network/address pair.
func NewStub(ifaceName, network, address string) StubBase {
	return StubBase{InterfaceName: ifaceName, Network: network, Address: address}
}

// Equal reports whether two stubs denote the same interface at the
// same address. Serviced locally; never dials the network.
func (b StubBase) Equal(other StubBase) bool {
	return b.InterfaceName == other.InterfaceName && b.Network == other.Network && b.Address == other.Address
}

// Hash combines the interface name and bound address.
func (b StubBase) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(b.InterfaceName))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(b.Network))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(b.Address))
	return h.Sum64()
}

// String includes the interface name and address.
func (b StubBase) String() string {
	return fmt.Sprintf("%s@%s:%s", b.InterfaceName, b.Network, b.Address)
}

// Invoke performs one RMI call: dial, send Request, read Response,
// close the connection. It is the single generic call path every
// per-interface stub's methods forward to.
//
// sig must be a signature previously obtained from Describe for
// the interface this stub proxies, so that ParamTypes/ReturnType are
// populated exactly as the Skeleton will check them.
func Invoke(base StubBase, sig MethodSignature, args []interface{}) (interface{}, error) {
	conn, err := net.DialTimeout(base.Network, base.Address, dialTimeout)
	if err != nil {
		return nil, rmierr.NewTransportError(fmt.Errorf("dial %s %s: %w", base.Network, base.Address, err))
	}
	defer func() { _ = conn.Close() }()

	req := Request{
		InterfaceName: base.InterfaceName,
		MethodName:    sig.Name,
		ParamTypes:    sig.ParamTypes,
		ReturnType:    sig.ReturnType,
		Args:          args,
	}
	if err := writeFrame(conn, req); err != nil {
		return nil, rmierr.NewTransportError(fmt.Errorf("send request: %w", err))
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return nil, rmierr.NewTransportError(fmt.Errorf("read response: %w", err))
	}

	switch resp.Tag {
	case ReturnValue:
		return resp.Value, nil
	case MethodException:
		return nil, resp.Err.decode()
	case RMIException:
		return nil, resp.Err.decode()
	default:
		return nil, rmierr.NewTransportError(fmt.Errorf("unrecognized response tag %d", resp.Tag))
	}
}

// DescribeMethod is a small convenience for hand-written stubs: it
// looks up method's signature on an interface descriptor built once at
// package init via Describe, panicking if the method is not part of
// the interface (a programmer error, not a runtime condition).
func DescribeMethod(d *InterfaceDescriptor, name string) MethodSignature {
	sig, ok := d.Signature(name)
	if !ok {
		panic(fmt.Sprintf("rmi: %s has no method %s", d.Name, name))
	}
	return sig
}
