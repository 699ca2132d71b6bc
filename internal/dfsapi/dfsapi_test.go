package dfsapi

import (
	"testing"

	"github.com/lowmarsh/dfs/internal/dpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	sizeFn func(dpath.Path) (int64, error)
}

func (f *fakeStorage) Size(p dpath.Path) (int64, error)                         { return f.sizeFn(p) }
func (f *fakeStorage) Read(p dpath.Path, offset, length int64) ([]byte, error) { return nil, nil }
func (f *fakeStorage) Write(p dpath.Path, offset int64, data []byte) error     { return nil }

func TestStorageRoundTripOverLoopback(t *testing.T) {
	impl := &fakeStorage{sizeFn: func(p dpath.Path) (int64, error) { return int64(len(p.String())), nil }}
	sk, err := NewStorageSkeleton(impl, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, sk.Start())
	defer sk.Stop()

	stub, err := NewStorageStubFromSkeleton(sk)
	require.NoError(t, err)

	got, err := stub.Size(dpath.MustNew("/a/b.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("/a/b.txt")), got)
}

func TestStubEqualityAcrossConstruction(t *testing.T) {
	a := NewStorageStub("tcp", "127.0.0.1:9000")
	b := NewStorageStub("tcp", "127.0.0.1:9000")
	assert.True(t, a.Equal(b.StubBase))
	assert.Equal(t, a.Hash(), b.Hash())
}
