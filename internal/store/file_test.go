package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFile_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	store, err := OpenFile(path)
	require.NoError(t, err)

	_, found, err := store.Get(context.Background(), KeyResponse)
	assert.NoError(t, err)
	assert.False(t, found)

	// directory is created eagerly, the file only on first write
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFile_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, KeyAuthToken, []byte(`"abc"`)))
	require.NoError(t, store.Set(ctx, KeyResponse, []byte(`{"https://api/tasks":[{"id":1}]}`)))
	require.NoError(t, store.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)

	token, found, err := reopened.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `"abc"`, string(token))

	response, found, err := reopened.Get(ctx, KeyResponse)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"https://api/tasks":[{"id":1}]}`, string(response))
}

func TestFile_DeletePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, KeyUserID, []byte(`"7"`)))
	require.NoError(t, store.Delete(ctx, KeyUserID))

	reopened, err := OpenFile(path)
	require.NoError(t, err)

	_, found, err := reopened.Get(ctx, KeyUserID)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestFile_RejectsInvalidJSON(t *testing.T) {
	store, err := OpenFile(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	err = store.Set(context.Background(), "k", []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")

	_, found, _ := store.Get(context.Background(), "k")
	assert.False(t, found)
}

func TestOpenFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2,3]`), 0o600))

	_, err := OpenFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing store file")
}

func TestOpenFile_EmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	store, err := OpenFile(path)
	require.NoError(t, err)

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOpenFile_RequiresPath(t *testing.T) {
	_, err := OpenFile("")
	assert.Error(t, err)
}

func TestFile_SeesWritesFromAnotherHandle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	agent, err := OpenFile(path)
	require.NoError(t, err)
	operator, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, agent.Set(ctx, KeyAuthToken, []byte(`"abc"`)))
	require.NoError(t, agent.Set(ctx, KeyResponse, []byte(`{"https://api/tasks":[{"id":1}]}`)))

	token, found, err := operator.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `"abc"`, string(token))

	require.NoError(t, operator.Delete(ctx, KeyResponse))
	require.NoError(t, operator.Delete(ctx, KeyAuthToken))

	_, found, err = agent.Get(ctx, KeyResponse)
	require.NoError(t, err)
	assert.False(t, found, "deletion by the other handle must be visible")

	// a later write must not restore what the other handle deleted
	require.NoError(t, agent.Set(ctx, KeyUserID, []byte(`"7"`)))

	keys, err := operator.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyUserID}, keys)
}

func TestFile_RemovedDocumentStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyAuthToken, []byte(`"abc"`)))

	require.NoError(t, os.Remove(path))

	_, found, err := store.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFile_CorruptedWhileOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyAuthToken, []byte(`"abc"`)))

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))

	_, _, err = store.Get(ctx, KeyAuthToken)
	assert.ErrorContains(t, err, "parsing store file")
}
