package dpath

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/lowmarsh/dfs/internal/rmierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootBoundary(t *testing.T) {
	assert.True(t, Root().IsRoot())
	assert.Equal(t, "/", Root().String())
	p, err := New("/")
	require.NoError(t, err)
	assert.True(t, p.IsRoot())
}

func TestParseDropsEmptySegments(t *testing.T) {
	p, err := New("/a//b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Components())
}

func TestParseRejectsMissingLeadingSlash(t *testing.T) {
	_, err := New("a/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, rmierr.ErrInvalidArgument)
}

func TestParseRejectsColon(t *testing.T) {
	_, err := New("/a:b")
	require.Error(t, err)
	assert.ErrorIs(t, err, rmierr.ErrInvalidArgument)
}

func TestChildRejectsBadComponents(t *testing.T) {
	for _, c := range []string{"", "a/b", "a:b"} {
		_, err := Child(Root(), c)
		assert.ErrorIsf(t, err, rmierr.ErrInvalidArgument, "component %q", c)
	}
}

func TestParentAndLastAtRootFail(t *testing.T) {
	_, err := Root().Parent()
	assert.ErrorIs(t, err, rmierr.ErrInvalidArgument)
	_, err = Root().Last()
	assert.ErrorIs(t, err, rmierr.ErrInvalidArgument)
}

func TestChildParentLastLaws(t *testing.T) {
	parents := []string{"/", "/a", "/a/b", "/etc/dfs"}
	components := []string{"x", "y-z", "a.b", "123"}
	for _, raw := range parents {
		parent := MustNew(raw)
		for _, comp := range components {
			child, err := Child(parent, comp)
			require.NoError(t, err)
			gotParent, err := child.Parent()
			require.NoError(t, err)
			gotLast, err := child.Last()
			require.NoError(t, err)
			assert.True(t, gotParent.Equal(parent))
			assert.Equal(t, comp, gotLast)
		}
	}
}

func TestRandomKeyEquality(t *testing.T) {
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		b := make([]byte, 8)
		_, _ = r.Read(b)
		raw := fmt.Sprintf("/%x", b)
		p1 := MustNew(raw)
		p2 := MustNew(raw)
		return p1.Equal(p2)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func TestIsSubpathLaw(t *testing.T) {
	root := Root()
	a := MustNew("/etc")
	b := MustNew("/etc/dfs")
	c := MustNew("/bin/cat")

	assert.True(t, root.IsSubpath(root))
	assert.True(t, b.IsSubpath(a))
	assert.True(t, a.IsSubpath(root))
	assert.False(t, a.IsSubpath(b))
	assert.False(t, a.IsSubpath(c))

	for _, pair := range [][2]Path{{a, a}, {b, b}, {root, root}} {
		p, q := pair[0], pair[1]
		assert.Equal(t, p.IsSubpath(q) && q.IsSubpath(p), p.Equal(q))
	}
}

func TestCompareTotalOrderAncestorsFirst(t *testing.T) {
	paths := []Path{
		MustNew("/bin/cat"),
		MustNew("/bin"),
		MustNew("/etc/dfs/conf.txt"),
		MustNew("/etc/dfs"),
		MustNew("/etc"),
		Root(),
		MustNew("/a"),
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })

	idx := func(s string) int {
		for i, p := range paths {
			if p.String() == s {
				return i
			}
		}
		t.Fatalf("missing %s", s)
		return -1
	}
	assert.Less(t, idx("/"), idx("/a"))
	assert.Less(t, idx("/bin"), idx("/bin/cat"))
	assert.Less(t, idx("/etc"), idx("/etc/dfs"))
	assert.Less(t, idx("/etc/dfs"), idx("/etc/dfs/conf.txt"))
}

func TestStringRoundTrip(t *testing.T) {
	samples := []string{"/", "/a", "/a/b", "/a/b/c"}
	for _, s := range samples {
		p, err := New(s)
		require.NoError(t, err)
		p2, err := New(p.String())
		require.NoError(t, err)
		assert.True(t, p.Equal(p2))
	}
}

func TestListEnumeratesFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("y"), 0600))

	got, err := List(dir)
	require.NoError(t, err)

	var gotStrings []string
	for _, p := range got {
		gotStrings = append(gotStrings, p.String())
	}
	sort.Strings(gotStrings)
	assert.Equal(t, []string{"/a/b.txt", "/c.txt"}, gotStrings)
}

func TestListRejectsMissingOrNonDirectory(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, rmierr.ErrNotFound)

	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	_, err = List(file)
	assert.ErrorIs(t, err, rmierr.ErrInvalidArgument)
}

func TestHashIsOrderSensitive(t *testing.T) {
	a := MustNew("/a/b")
	b := MustNew("/b/a")
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Hash(), MustNew("/a/b").Hash())
}

func TestDiff(t *testing.T) {
	a := MustNew("/a/b")
	b := MustNew("/a/b")
	if diff := cmp.Diff(a.Components(), b.Components()); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}
