package docservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specbook-dev/specbook/internal/apperr"
	"github.com/specbook-dev/specbook/internal/checksum"
	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/storage"
	"github.com/specbook-dev/specbook/internal/store"
	"github.com/specbook-dev/specbook/internal/testutil"
)

// failingVault wraps a Provider and fails every write while the switch
// is on.
type failingVault struct {
	inner      storage.Provider
	failWrites bool
}

func (v *failingVault) List(dir string) ([]models.DocumentMeta, error) { return v.inner.List(dir) }
func (v *failingVault) Read(path string) ([]byte, error)               { return v.inner.Read(path) }
func (v *failingVault) Delete(path string) error                       { return v.inner.Delete(path) }
func (v *failingVault) Write(path string, content []byte) error {
	if v.failWrites {
		return errors.New("simulated io failure")
	}
	return v.inner.Write(path, content)
}

func newService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()
	root, vault := testutil.TestWorkspace(t)
	docs := store.New()
	return NewService(docs, vault), docs, root
}

func seed(t *testing.T, docs *store.Store, path, content string) models.Document {
	t.Helper()
	doc, changed := docs.UpsertFromScan(path, []byte(content), checksum.Sum([]byte(content)))
	require.True(t, changed)
	return doc
}

func TestSaveRoundTrip(t *testing.T) {
	svc, docs, root := newService(t)
	seed(t, docs, "specs/001-auth/spec.md", "---\nstatus: draft\n---\nold\n")

	saved, err := svc.Save(context.Background(), "specs/001-auth/spec.md",
		[]byte("---\nstatus: in-review\n---\nnew\n"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, models.StatusInReview, saved.Status)

	// The store reflects the save immediately.
	got, err := svc.Get(context.Background(), "specs/001-auth/spec.md")
	require.NoError(t, err)
	assert.Equal(t, saved.Content, got.Content)
	assert.Equal(t, saved.Version, got.Version)

	// And the bytes reached disk.
	onDisk, err := os.ReadFile(filepath.Join(root, "specs/001-auth/spec.md"))
	require.NoError(t, err)
	assert.Equal(t, saved.Content, string(onDisk))
}

func TestSaveConflictCarriesAuthoritativeState(t *testing.T) {
	svc, docs, _ := newService(t)
	seed(t, docs, "specs/001-a/spec.md", "authoritative\n")

	_, err := svc.Save(context.Background(), "specs/001-a/spec.md", []byte("stale\n"), 7)
	require.Error(t, err)

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.CurrentVersion)
	assert.Equal(t, "authoritative\n", conflict.CurrentContent)
}

func TestSaveUnknownDocument(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Save(context.Background(), "specs/404/spec.md", []byte("x"), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSaveIOFailureKeepsVersion(t *testing.T) {
	_, inner := testutil.TestWorkspace(t)
	vault := &failingVault{inner: inner, failWrites: true}
	docs := store.New()
	svc := NewService(docs, vault)
	seed(t, docs, "specs/001-a/spec.md", "safe\n")

	_, err := svc.Save(context.Background(), "specs/001-a/spec.md", []byte("lost\n"), 1)
	require.Error(t, err)

	got, err := svc.Get(context.Background(), "specs/001-a/spec.md")
	require.NoError(t, err)
	assert.Equal(t, "safe\n", got.Content)
	assert.Equal(t, int64(1), got.Version)
}

func TestRepeatedIOFailuresMarkWriteUnavailable(t *testing.T) {
	_, inner := testutil.TestWorkspace(t)
	vault := &failingVault{inner: inner, failWrites: true}
	docs := store.New()
	svc := NewService(docs, vault)
	seed(t, docs, "specs/001-a/spec.md", "v1\n")

	for i := 0; i < writeFailureLimit; i++ {
		_, err := svc.Save(context.Background(), "specs/001-a/spec.md", []byte("x\n"), 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, apperr.ErrWriteUnavailable)
	}

	// Past the limit the save is refused up front, but reads still work.
	_, err := svc.Save(context.Background(), "specs/001-a/spec.md", []byte("x\n"), 1)
	assert.ErrorIs(t, err, apperr.ErrWriteUnavailable)

	got, err := svc.Get(context.Background(), "specs/001-a/spec.md")
	require.NoError(t, err)
	assert.True(t, got.WriteUnavailable)
	assert.Equal(t, "v1\n", got.Content)

	// A successful write clears the flag.
	vault.failWrites = false
	svc.clearWriteFailures("specs/001-a/spec.md")
	saved, err := svc.Save(context.Background(), "specs/001-a/spec.md", []byte("recovered\n"), 1)
	require.NoError(t, err)
	assert.False(t, saved.WriteUnavailable)
}

func TestCreateAndDelete(t *testing.T) {
	svc, _, root := newService(t)

	doc, err := svc.Create(context.Background(), "specs/001-new/spec.md", []byte("# New\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)

	_, err = svc.Create(context.Background(), "specs/001-new/spec.md", []byte("again"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	require.NoError(t, svc.Delete(context.Background(), "specs/001-new/spec.md"))
	_, statErr := os.Stat(filepath.Join(root, "specs/001-new/spec.md"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = svc.Get(context.Background(), "specs/001-new/spec.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteUnknown(t *testing.T) {
	svc, _, _ := newService(t)
	err := svc.Delete(context.Background(), "specs/404/spec.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListSnapshot(t *testing.T) {
	svc, docs, _ := newService(t)
	seed(t, docs, "specs/001-a/spec.md", "---\nstatus: draft\n---\n")
	seed(t, docs, "specs/001-a/tasks.md", "- [x] one\n- [ ] two\n")

	ws := svc.List(context.Background())
	require.Len(t, ws.Folders, 1)
	assert.Equal(t, models.StatusDraft, ws.Folders[0].Status)
	assert.Equal(t, 2, ws.Folders[0].Completion.TotalTasks)
	assert.Equal(t, 1, ws.Folders[0].Completion.CompletedTasks)
}
