package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "12345678-1234-1234-1234-123456789abc.jpg"

func newTestDir(t *testing.T) *LocalDir {
	t.Helper()
	dir, err := NewLocalDir(t.TempDir(), "/uploads")
	require.NoError(t, err)
	return dir
}

func TestLocalDirPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	dir := newTestDir(t)

	res, err := dir.Put(ctx, testID, bytes.NewBufferString("hello"))
	require.NoError(t, err)
	assert.Equal(t, testID, res.ID)
	assert.EqualValues(t, 5, res.SizeBytes)
	assert.Len(t, res.Checksum, 64)

	obj, err := dir.Open(ctx, testID)
	require.NoError(t, err)
	data, err := io.ReadAll(obj.Reader)
	require.NoError(t, obj.Reader.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.EqualValues(t, 5, obj.SizeBytes)

	exists, err := dir.Exists(ctx, testID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, dir.Delete(ctx, testID))

	err = dir.Delete(ctx, testID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.Open(ctx, testID)
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err = dir.Exists(ctx, testID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalDirPutRejectsExisting(t *testing.T) {
	ctx := context.Background()
	dir := newTestDir(t)

	_, err := dir.Put(ctx, testID, bytes.NewBufferString("first"))
	require.NoError(t, err)

	_, err = dir.Put(ctx, testID, bytes.NewBufferString("second"))
	require.ErrorIs(t, err, ErrExists)

	obj, err := dir.Open(ctx, testID)
	require.NoError(t, err)
	defer obj.Reader.Close()
	data, err := io.ReadAll(obj.Reader)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "existing blob must not be overwritten")
}

func TestLocalDirPutReaderFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := newTestDir(t)
	boom := errors.New("client went away")

	_, err := dir.Put(ctx, testID, io.MultiReader(bytes.NewBufferString("partial"), failingReader{err: boom}))
	require.ErrorIs(t, err, boom)
	var writeErr *WriteError
	assert.False(t, errors.As(err, &writeErr), "reader failures are not storage failures")

	ids, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	staged, err := os.ReadDir(filepath.Join(dir.Root(), stagingDirName))
	require.NoError(t, err)
	assert.Empty(t, staged, "staging file should be removed")
}

func TestLocalDirPutWriteError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	ctx := context.Background()
	dir := newTestDir(t)
	staging := filepath.Join(dir.Root(), stagingDirName)
	require.NoError(t, os.Chmod(staging, 0o500))
	t.Cleanup(func() { _ = os.Chmod(staging, 0o755) })

	_, err := dir.Put(ctx, testID, bytes.NewBufferString("hello"))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, testID, writeErr.ID)
}

func TestLocalDirListSkipsDirectoriesAndHiddenFiles(t *testing.T) {
	ctx := context.Background()
	dir := newTestDir(t)

	for _, id := range []string{"a.png", "b.gif", testID} {
		_, err := dir.Put(ctx, id, bytes.NewBufferString(id))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir.Root(), ".DS_Store"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir.Root(), "nested"), 0o755))

	ids, err := dir.List(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{testID, "a.png", "b.gif"}, ids)
}

func TestLocalDirRejectsInvalidIDs(t *testing.T) {
	ctx := context.Background()
	dir := newTestDir(t)

	for _, id := range []string{"", "..", "../escape.png", "a/b.png", `a\b.png`, ".staging"} {
		_, err := dir.Put(ctx, id, bytes.NewBufferString("x"))
		assert.ErrorIs(t, err, ErrInvalidID, "put %q", id)
		assert.ErrorIs(t, dir.Delete(ctx, id), ErrInvalidID, "delete %q", id)
		_, err = dir.Open(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID, "open %q", id)
	}
}

func TestLocalDirDeleteErrorIsTyped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	ctx := context.Background()
	dir := newTestDir(t)
	_, err := dir.Put(ctx, testID, bytes.NewBufferString("x"))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir.Root(), 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir.Root(), 0o755) })

	err = dir.Delete(ctx, testID)
	var deleteErr *DeleteError
	require.ErrorAs(t, err, &deleteErr)
	assert.Equal(t, testID, deleteErr.ID)
}

func TestLocalDirHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := newTestDir(t)

	_, err := dir.Put(ctx, testID, bytes.NewBufferString("x"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = dir.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestURLFor(t *testing.T) {
	dir := newTestDir(t)
	assert.Equal(t, "/uploads/"+testID, dir.URLFor(testID))

	assert.Equal(t, "/"+testID, MountPath("", testID))
	assert.Equal(t, "/files/blobs/"+testID, MountPath("/files/blobs/", testID))
}

type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
