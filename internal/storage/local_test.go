package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// exerciseBackend runs the contract every Backend implementation honours.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "person/a.enc", []byte("alpha")))
	require.NoError(t, b.Put(ctx, "person/b.enc", []byte("bravo!")))
	require.NoError(t, b.Put(ctx, "metadata/a.json", []byte(`{"id":"a"}`)))

	got, err := b.Get(ctx, "person/a.enc")
	require.NoError(t, err)
	require.Equal(t, []byte("alpha"), got)

	require.NoError(t, b.Put(ctx, "person/a.enc", []byte("alpha-2")))
	got, err = b.Get(ctx, "person/a.enc")
	require.NoError(t, err)
	require.Equal(t, []byte("alpha-2"), got)

	ok, err := b.Exists(ctx, "person/b.enc")
	require.NoError(t, err)
	require.True(t, ok)

	objects, err := b.List(ctx, "person")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	names := []string{objects[0].Name, objects[1].Name}
	require.ElementsMatch(t, []string{"a.enc", "b.enc"}, names)
	for _, o := range objects {
		require.Equal(t, "person/"+o.Name, o.Key)
		require.False(t, o.IsDir)
	}

	empty, err := b.List(ctx, "vehicle")
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, b.Delete(ctx, "person/b.enc"))
	require.NoError(t, b.Delete(ctx, "person/b.enc"))

	ok, err = b.Exists(ctx, "person/b.enc")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = b.Get(ctx, "person/b.enc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBackend(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "local", b.Name())
	exerciseBackend(t, b)
}

func TestLocalBackend_rejectsTraversal(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	require.Error(t, b.Put(context.Background(), "../escape.enc", []byte("x")))
	_, err = b.Get(context.Background(), "person/../../etc/passwd")
	require.Error(t, err)
}

func TestLocalBackend_listSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocalBackend(root)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "person"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "person", tempPrefix+"123"), []byte("partial"), 0o600))
	require.NoError(t, b.Put(context.Background(), "person/done.enc", []byte("done")))

	objects, err := b.List(context.Background(), "person")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, "done.enc", objects[0].Name)
}
