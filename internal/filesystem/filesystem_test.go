package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func mkdirs(t *testing.T, base string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(base, n), 0o755))
	}
}

func TestListChildren(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "TV", "movies", "Anime", ".cache")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	names, err := ListChildren(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Anime", "movies", "TV"}, names)

	names, err = ListChildren(dir, Options{ShowHidden: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".cache", "Anime", "movies", "TV"}, names)
}

func TestListChildren_FollowsDirectorySymlinks(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "real")
	if err := os.Symlink(filepath.Join(dir, "real"), filepath.Join(dir, "alias")); err != nil {
		t.Skip("symlinks not supported")
	}
	names, err := ListChildren(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alias", "real"}, names)
}

func TestListChildren_Errors(t *testing.T) {
	_, err := ListChildren("relative/path", Options{})
	assert.ErrorIs(t, err, ErrRelativePath)

	_, err = ListChildren(filepath.Join(tempDir(t), "missing"), Options{})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := tempDir(t)
	file := filepath.Join(dir, "file.mkv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, Validate(dir))
	assert.False(t, Validate(file))
	assert.ErrorIs(t, Check(file), ErrNotDirectory)
	assert.False(t, Validate(filepath.Join(dir, "nope")))
	assert.False(t, Validate(""))
	assert.False(t, Validate("media"))
}

func TestResolveBreadcrumbs(t *testing.T) {
	sep := string(filepath.Separator)
	root := filepath.VolumeName(tempDir(t)) + sep
	path := filepath.Join(root, "media", "tv", "..", "movies")

	crumbs, err := ResolveBreadcrumbs(path)
	require.NoError(t, err)
	assert.Equal(t, []Breadcrumb{
		{Name: root, Path: root},
		{Name: "media", Path: filepath.Join(root, "media")},
		{Name: "movies", Path: filepath.Join(root, "media", "movies")},
	}, crumbs)

	crumbs, err = ResolveBreadcrumbs(root)
	require.NoError(t, err)
	assert.Len(t, crumbs, 1)

	_, err = ResolveBreadcrumbs("media/movies")
	assert.ErrorIs(t, err, ErrRelativePath)
}

func TestResolveBreadcrumbs_ResolvesSymlinks(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "real/shows")
	if err := os.Symlink(filepath.Join(dir, "real"), filepath.Join(dir, "alias")); err != nil {
		t.Skip("symlinks not supported")
	}

	crumbs, err := ResolveBreadcrumbs(filepath.Join(dir, "alias", "shows"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(crumbs), 2)
	last := crumbs[len(crumbs)-1]
	assert.Equal(t, Breadcrumb{Name: "shows", Path: filepath.Join(dir, "real", "shows")}, last)
	assert.Equal(t, "real", crumbs[len(crumbs)-2].Name)
}

func TestCanonicalize(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "a/b")

	got, err := Canonicalize(filepath.Join(dir, "a", "b", "..", "b", "."))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b"), got)

	missing := filepath.Join(dir, "x", "..", "y")
	got, err = Canonicalize(missing)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "y"), got)
}

func TestExpand_DetectsSymlinkCycle(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "a/b")
	if err := os.Symlink(dir, filepath.Join(dir, "a", "b", "loop")); err != nil {
		t.Skip("symlinks not supported")
	}

	tree, err := Expand(dir, 20, Options{})
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	a := tree.Children[0]
	require.Len(t, a.Children, 1)
	b := a.Children[0]
	require.Len(t, b.Children, 1)
	loop := b.Children[0]
	assert.Equal(t, "loop", loop.Name)
	assert.True(t, loop.Cycle)
	assert.Nil(t, loop.Children)
}

func TestExpand_SiblingLinksToSameTargetAreNotCycles(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "target/inner")
	for _, name := range []string{"one", "two"} {
		if err := os.Symlink(filepath.Join(dir, "target"), filepath.Join(dir, name)); err != nil {
			t.Skip("symlinks not supported")
		}
	}

	tree, err := Expand(dir, 3, Options{})
	require.NoError(t, err)
	require.Len(t, tree.Children, 3)
	for _, child := range tree.Children {
		assert.False(t, child.Cycle, child.Name)
		require.Len(t, child.Children, 1, child.Name)
		assert.Equal(t, "inner", child.Children[0].Name)
	}
}

func TestExpand_DepthBounded(t *testing.T) {
	dir := tempDir(t)
	mkdirs(t, dir, "1/2/3/4/5/6/7/8/9/10/11")

	tree, err := Expand(dir, 100, Options{})
	require.NoError(t, err)

	depth := 0
	for n := tree; len(n.Children) > 0; n = n.Children[0] {
		depth++
	}
	assert.Equal(t, MaxExpandDepth, depth)

	shallow, err := Expand(dir, 1, Options{})
	require.NoError(t, err)
	require.Len(t, shallow.Children, 1)
	assert.Nil(t, shallow.Children[0].Children)
}

func TestExpand_RejectsFile(t *testing.T) {
	file := filepath.Join(tempDir(t), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err := Expand(file, 1, Options{})
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := tempDir(t)
	target := filepath.Join(dir, "sub", "encryption.key")

	require.NoError(t, WriteFileAtomic(target, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(target, []byte("two"), 0o600))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
