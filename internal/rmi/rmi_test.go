package rmi

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Echo is a small remote interface used only by this package's tests.
// Every method's last return value is error, making it a remote
// interface per Describe.
type Echo interface {
	Repeat(s string, n int) (string, error)
	Fail() error
	Boom(msg string) error
}

type echoImpl struct {
	failErr error
	boom    func(string) error
}

func (e *echoImpl) Repeat(s string, n int) (string, error) {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out, nil
}

func (e *echoImpl) Fail() error {
	return e.failErr
}

func (e *echoImpl) Boom(msg string) error {
	if e.boom != nil {
		return e.boom(msg)
	}
	return nil
}

type echoStub struct {
	StubBase
	descriptor *InterfaceDescriptor
}

func newEchoStub(base StubBase, descriptor *InterfaceDescriptor) Echo {
	return &echoStub{StubBase: base, descriptor: descriptor}
}

func (s *echoStub) Repeat(str string, n int) (string, error) {
	v, err := Invoke(s.StubBase, DescribeMethod(s.descriptor, "Repeat"), []interface{}{str, n})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *echoStub) Fail() error {
	_, err := Invoke(s.StubBase, DescribeMethod(s.descriptor, "Fail"), nil)
	return err
}

func (s *echoStub) Boom(msg string) error {
	_, err := Invoke(s.StubBase, DescribeMethod(s.descriptor, "Boom"), []interface{}{msg})
	return err
}

var echoType = reflect.TypeOf((*Echo)(nil)).Elem()

func startEchoSkeleton(t *testing.T, impl Echo) (*Skeleton, string) {
	t.Helper()
	sk, err := NewSkeleton(echoType, impl, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, sk.Start())
	_, addr, err := sk.Address()
	require.NoError(t, err)
	t.Cleanup(sk.Stop)
	return sk, addr
}

func TestDescribeRejectsNonRemoteInterface(t *testing.T) {
	type notRemote interface {
		DoThing() string
	}
	_, err := Describe(reflect.TypeOf((*notRemote)(nil)).Elem())
	require.Error(t, err)
}

func TestSkeletonStubRoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	impl := &echoImpl{failErr: fmt.Errorf("nope: %w", rmierr.ErrNotFound)}
	_, addr := startEchoSkeleton(t, impl)

	descriptor, err := Describe(echoType)
	require.NoError(t, err)
	stub := newEchoStub(NewStub("Echo", "tcp", addr), descriptor)

	got, err := stub.Repeat("ab", 3)
	require.NoError(t, err)
	assert.Equal(t, "ababab", got)

	err = stub.Fail()
	require.Error(t, err)
	assert.ErrorIs(t, err, rmierr.ErrNotFound)
}

func TestStubEqualityServicedLocally(t *testing.T) {
	base1 := NewStub("Echo", "tcp", "127.0.0.1:1234")
	base2 := NewStub("Echo", "tcp", "127.0.0.1:1234")
	base3 := NewStub("Echo", "tcp", "127.0.0.1:9999")

	assert.True(t, base1.Equal(base2))
	assert.Equal(t, base1.Hash(), base2.Hash())
	assert.False(t, base1.Equal(base3))
	assert.Contains(t, base1.String(), "Echo")
}

func TestStubTransportFailureOnDeadServer(t *testing.T) {
	impl := &echoImpl{}
	sk, addr := startEchoSkeleton(t, impl)
	descriptor, err := Describe(echoType)
	require.NoError(t, err)
	stub := newEchoStub(NewStub("Echo", "tcp", addr), descriptor)

	sk.Stop()
	time.Sleep(10 * time.Millisecond)

	err = stub.Fail()
	require.Error(t, err)
	assert.True(t, rmierr.IsTransportError(err))
}

func TestSkeletonStateMachine(t *testing.T) {
	impl := &echoImpl{}
	sk, err := NewSkeleton(echoType, impl, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	_, _, err = sk.Address()
	assert.ErrorIs(t, err, rmierr.ErrIllegalState)

	require.NoError(t, sk.Start())
	err = sk.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, rmierr.ErrIllegalState)

	sk.Stop()
	require.NoError(t, sk.Start()) // restart from STOPPED is allowed
	sk.Stop()
}

func TestUnknownMethodYieldsRMIException(t *testing.T) {
	impl := &echoImpl{}
	_, addr := startEchoSkeleton(t, impl)
	descriptor, err := Describe(echoType)
	require.NoError(t, err)

	badSig := DescribeMethod(descriptor, "Repeat")
	badSig.Name = "NoSuchMethod"
	_, err = Invoke(NewStub("Echo", "tcp", addr), badSig, []interface{}{"x", 1})
	require.Error(t, err)
}
