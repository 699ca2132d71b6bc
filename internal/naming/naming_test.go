package naming

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
)

// fakeBackend is a minimal in-memory stand-in for a storage server,
// implementing both dfsapi.Storage and dfsapi.Command, used to drive
// naming server tests without depending on internal/storageserver.
type fakeBackend struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeBackend(seed map[string][]byte) *fakeBackend {
	b := &fakeBackend{files: make(map[string][]byte)}
	for k, v := range seed {
		b.files[k] = v
	}
	return b
}

func (b *fakeBackend) Size(p dpath.Path) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.files[p.String()])), nil
}

func (b *fakeBackend) Read(p dpath.Path, offset, length int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.files[p.String()]
	return append([]byte(nil), data[offset:offset+length]...), nil
}

func (b *fakeBackend) Write(p dpath.Path, offset int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[p.String()] = data
	return nil
}

func (b *fakeBackend) Create(p dpath.Path) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[p.String()] = nil
	return true, nil
}

func (b *fakeBackend) Delete(p dpath.Path) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, p.String())
	return true, nil
}

func (b *fakeBackend) Copy(p dpath.Path, src dfsapi.StorageStub) (bool, error) {
	data, err := src.Read(p, 0, mustSize(src, p))
	if err != nil {
		return false, err
	}
	b.mu.Lock()
	b.files[p.String()] = data
	b.mu.Unlock()
	return true, nil
}

func mustSize(stub dfsapi.StorageStub, p dpath.Path) int64 {
	n, err := stub.Size(p)
	if err != nil {
		return 0
	}
	return n
}

// startFakeStorage starts a backend's Storage and Command skeletons on
// loopback addresses and returns stubs for both, plus a stop func.
func startFakeStorage(t *testing.T, backend *fakeBackend) (dfsapi.StorageStub, dfsapi.CommandStub, func()) {
	t.Helper()
	storageSk, err := dfsapi.NewStorageSkeleton(backend, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, storageSk.Start())

	commandSk, err := dfsapi.NewCommandSkeleton(backend, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, commandSk.Start())

	storageStub, err := dfsapi.NewStorageStubFromSkeleton(storageSk)
	require.NoError(t, err)
	commandStub, err := dfsapi.NewCommandStubFromSkeleton(commandSk)
	require.NoError(t, err)

	return storageStub, commandStub, func() {
		storageSk.Stop()
		commandSk.Stop()
	}
}

func TestHappyPath(t *testing.T) {
	defer leaktest.Check(t)()
	s := NewServer(0)
	backend := newFakeBackend(map[string][]byte{
		"/a/b.txt": []byte("hello"),
		"/a/c.txt": []byte("world"),
	})
	storageStub, commandStub, stop := startFakeStorage(t, backend)
	defer stop()

	resp, err := s.Register(storageStub, commandStub, []dpath.Path{
		dpath.MustNew("/a/b.txt"), dpath.MustNew("/a/c.txt"),
	})
	require.NoError(t, err)
	assert.Empty(t, resp)

	got, err := s.GetStorage(dpath.MustNew("/a/b.txt"))
	require.NoError(t, err)
	assert.True(t, got.Equal(storageStub.StubBase))

	size, err := got.Size(dpath.MustNew("/a/b.txt"))
	require.NoError(t, err)
	data, err := got.Read(dpath.MustNew("/a/b.txt"), 0, size)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDuplicatePruning(t *testing.T) {
	defer leaktest.Check(t)()
	s := NewServer(0)

	b1 := newFakeBackend(map[string][]byte{"/x": []byte("1")})
	s1, c1, stop1 := startFakeStorage(t, b1)
	defer stop1()
	resp1, err := s.Register(s1, c1, []dpath.Path{dpath.MustNew("/x")})
	require.NoError(t, err)
	assert.Empty(t, resp1)

	b2 := newFakeBackend(map[string][]byte{"/x": []byte("2"), "/y": []byte("3")})
	s2, c2, stop2 := startFakeStorage(t, b2)
	defer stop2()
	resp2, err := s.Register(s2, c2, []dpath.Path{dpath.MustNew("/x"), dpath.MustNew("/y")})
	require.NoError(t, err)
	require.Len(t, resp2, 1)
	assert.True(t, resp2[0].Equal(dpath.MustNew("/x")))

	names, err := s.List(dpath.Root())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, names)

	owner, err := s.GetStorage(dpath.MustNew("/x"))
	require.NoError(t, err)
	assert.True(t, owner.Equal(s1.StubBase))
}

func TestReplicationCrossesThreshold(t *testing.T) {
	defer leaktest.Check(t)()
	const threshold = 3
	s := NewServer(threshold)

	b1 := newFakeBackend(map[string][]byte{"/y": []byte("data")})
	s1, c1, stop1 := startFakeStorage(t, b1)
	defer stop1()
	_, err := s.Register(s1, c1, []dpath.Path{dpath.MustNew("/y")})
	require.NoError(t, err)

	b2 := newFakeBackend(nil)
	s2, c2, stop2 := startFakeStorage(t, b2)
	defer stop2()
	_, err = s.Register(s2, c2, nil)
	require.NoError(t, err)

	for i := 0; i < threshold; i++ {
		_, err := s.GetStorage(dpath.MustNew("/y"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		lp, err := s.acquire(dpath.MustNew("/y"), shared)
		if err != nil {
			return false
		}
		n := len(lp.target.replicaList())
		lp.release()
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInvalidationShrinksReplicaSet(t *testing.T) {
	defer leaktest.Check(t)()
	s := NewServer(1)

	b1 := newFakeBackend(map[string][]byte{"/y": []byte("data")})
	s1, c1, stop1 := startFakeStorage(t, b1)
	defer stop1()
	b2 := newFakeBackend(nil)
	s2, c2, stop2 := startFakeStorage(t, b2)
	defer stop2()

	_, err := s.Register(s1, c1, []dpath.Path{dpath.MustNew("/y")})
	require.NoError(t, err)
	_, err = s.Register(s2, c2, nil)
	require.NoError(t, err)

	_, err = s.GetStorage(dpath.MustNew("/y"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		lp, err := s.acquire(dpath.MustNew("/y"), shared)
		if err != nil {
			return false
		}
		n := len(lp.target.replicaList())
		lp.release()
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Lock(dpath.MustNew("/y"), true))
	require.NoError(t, s.Unlock(dpath.MustNew("/y"), true))

	lp, err := s.acquire(dpath.MustNew("/y"), shared)
	require.NoError(t, err)
	assert.Len(t, lp.target.replicaList(), 1)
	lp.release()
}

func TestDeadlockFreedomAscendingOrder(t *testing.T) {
	defer leaktest.Check(t)()
	s := NewServer(0)
	require.NoError(t, mkdirAll(s, "/etc"))
	require.NoError(t, mkdirAll(s, "/bin"))

	backend := newFakeBackend(nil)
	stub, cmd, stop := startFakeStorage(t, backend)
	defer stop()
	_, err := s.Register(stub, cmd, nil)
	require.NoError(t, err)

	_, err = s.CreateFile(dpath.MustNew("/bin/cat"))
	require.NoError(t, err)
	_, err = s.CreateFile(dpath.MustNew("/etc/dfs_conf.txt"))
	require.NoError(t, err)

	// Deadlock freedom across independently chosen multi-path lock sets
	// depends, per spec.md §8 scenario 5, on each caller acquiring its
	// own paths in ascending Path order; the naming server does not
	// reorder a caller's lock requests for it.
	done := make(chan struct{}, 2)
	locker := func(paths ...string) {
		ps := make([]dpath.Path, len(paths))
		for i, p := range paths {
			ps[i] = dpath.MustNew(p)
		}
		sort.Slice(ps, func(i, j int) bool { return ps[i].Compare(ps[j]) < 0 })
		for _, p := range ps {
			require.NoError(t, s.Lock(p, true))
		}
		for i := len(ps) - 1; i >= 0; i-- {
			require.NoError(t, s.Unlock(ps[i], true))
		}
		done <- struct{}{}
	}
	go locker("/etc", "/bin/cat")
	go locker("/bin/cat", "/etc/dfs_conf.txt")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("deadlock: first locker did not finish")
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("deadlock: second locker did not finish")
	}
}

func TestTransportFailureOnStoppedStorage(t *testing.T) {
	s := NewServer(0)
	backend := newFakeBackend(map[string][]byte{"/f": []byte("bytes")})
	stub, cmd, stop := startFakeStorage(t, backend)
	_, err := s.Register(stub, cmd, []dpath.Path{dpath.MustNew("/f")})
	require.NoError(t, err)

	got, err := s.GetStorage(dpath.MustNew("/f"))
	require.NoError(t, err)
	stop()

	_, err = got.Size(dpath.MustNew("/f"))
	assert.Error(t, err)
}

func TestDeleteMakesGetStorageNotFound(t *testing.T) {
	defer leaktest.Check(t)()
	s := NewServer(0)
	backend := newFakeBackend(nil)
	stub, cmd, stop := startFakeStorage(t, backend)
	defer stop()
	_, err := s.Register(stub, cmd, nil)
	require.NoError(t, err)

	ok, err := s.CreateFile(dpath.MustNew("/f"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(dpath.MustNew("/f"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetStorage(dpath.MustNew("/f"))
	assert.Error(t, err)
}

func TestCreateFileOnRootReturnsFalse(t *testing.T) {
	s := NewServer(0)
	ok, err := s.CreateFile(dpath.Root())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateFileFailsIllegalStateWithoutStorage(t *testing.T) {
	s := NewServer(0)
	_, err := s.CreateFile(dpath.MustNew("/f"))
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicateStub(t *testing.T) {
	s := NewServer(0)
	backend := newFakeBackend(nil)
	stub, cmd, stop := startFakeStorage(t, backend)
	defer stop()
	_, err := s.Register(stub, cmd, nil)
	require.NoError(t, err)
	_, err = s.Register(stub, cmd, nil)
	assert.Error(t, err)
}

func mkdirAll(s *Server, p string) error {
	var built string
	for _, c := range dpath.MustNew(p).Components() {
		built += "/" + c
		if _, err := s.CreateDirectory(dpath.MustNew(built)); err != nil {
			return err
		}
	}
	return nil
}
