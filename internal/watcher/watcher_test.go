package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/scanner"
	"github.com/specbook-dev/specbook/internal/store"
)

const testDebounce = 50 * time.Millisecond

// startWatcher runs Watch in the background over a synced workspace.
func startWatcher(t *testing.T) (*store.Store, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "specs"), 0o755); err != nil {
		t.Fatal(err)
	}

	docs := store.New()
	rec := NewReconciler(root, scanner.New(root, testLogger()), docs, testLogger())
	if err := rec.SyncAll(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, rec, root, Config{Debounce: testDebounce, FallbackRescan: time.Minute}, testLogger())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to establish its watches.
	time.Sleep(100 * time.Millisecond)
	return docs, root
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatchPicksUpNewFile(t *testing.T) {
	docs, root := startWatcher(t)

	writeFile(t, root, "specs/001-a/spec.md", "---\nstatus: draft\n---\n# A\n")

	ok := eventually(t, 5*time.Second, func() bool {
		_, err := docs.Get("specs/001-a/spec.md")
		return err == nil
	})
	if !ok {
		t.Fatal("new file never reached the store")
	}
	doc, _ := docs.Get("specs/001-a/spec.md")
	if doc.Status != models.StatusDraft {
		t.Errorf("status = %q", doc.Status)
	}
}

func TestWatchExternalEditBumpsVersionOnce(t *testing.T) {
	docs, root := startWatcher(t)

	writeFile(t, root, "specs/001-a/spec.md", "---\nstatus: draft\n---\nbody\n")
	if !eventually(t, 5*time.Second, func() bool {
		_, err := docs.Get("specs/001-a/spec.md")
		return err == nil
	}) {
		t.Fatal("file never reached the store")
	}
	base, _ := docs.Get("specs/001-a/spec.md")

	// An external editor flips the frontmatter status.
	writeFile(t, root, "specs/001-a/spec.md", "---\nstatus: in-review\n---\nbody\n")

	if !eventually(t, 5*time.Second, func() bool {
		doc, _ := docs.Get("specs/001-a/spec.md")
		return doc.Status == models.StatusInReview
	}) {
		t.Fatal("external status change never applied")
	}

	doc, _ := docs.Get("specs/001-a/spec.md")
	if doc.Version != base.Version+1 {
		t.Errorf("version = %d, want exactly %d", doc.Version, base.Version+1)
	}

	// After a quiet period no further bumps appear: the edit was applied
	// exactly once despite the editor's multiple fs events.
	time.Sleep(4 * testDebounce)
	after, _ := docs.Get("specs/001-a/spec.md")
	if after.Version != doc.Version {
		t.Errorf("version drifted from %d to %d", doc.Version, after.Version)
	}
}

func TestWatchRemoveFile(t *testing.T) {
	docs, root := startWatcher(t)

	writeFile(t, root, "specs/001-a/spec.md", "# A\n")
	if !eventually(t, 5*time.Second, func() bool {
		_, err := docs.Get("specs/001-a/spec.md")
		return err == nil
	}) {
		t.Fatal("file never reached the store")
	}

	if err := os.Remove(filepath.Join(root, "specs/001-a/spec.md")); err != nil {
		t.Fatal(err)
	}

	if !eventually(t, 5*time.Second, func() bool {
		_, err := docs.Get("specs/001-a/spec.md")
		return err != nil
	}) {
		t.Fatal("removed file never left the store")
	}
}

func TestWatchProjectDocument(t *testing.T) {
	docs, root := startWatcher(t)

	writeFile(t, root, "CLAUDE.md", "# Rules\n")

	if !eventually(t, 5*time.Second, func() bool {
		_, err := docs.Get("CLAUDE.md")
		return err == nil
	}) {
		t.Fatal("project document never reached the store")
	}

	// The listing must refresh too, not just the document itself.
	if !eventually(t, 5*time.Second, func() bool {
		for _, pd := range docs.List().ProjectDocuments {
			if pd.Path == "CLAUDE.md" {
				return true
			}
		}
		return false
	}) {
		t.Fatal("new project document never appeared in the listing")
	}
}

func TestWatchNewMemoryDocumentRefreshesListing(t *testing.T) {
	docs, root := startWatcher(t)

	writeFile(t, root, ".specify/memory/constitution.md", "# Constitution\n")

	if !eventually(t, 5*time.Second, func() bool {
		for _, pd := range docs.List().ProjectDocuments {
			if pd.Path == ".specify/memory/constitution.md" {
				return true
			}
		}
		return false
	}) {
		t.Fatal("memory document never appeared in the listing")
	}
}

func TestPollLoopFallback(t *testing.T) {
	root := t.TempDir()
	docs := store.New()
	rec := NewReconciler(root, scanner.New(root, testLogger()), docs, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pollLoop(ctx, rec, 30*time.Millisecond, testLogger())
	}()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, root, "specs/001-a/spec.md", "# A\n")

	if !eventually(t, 5*time.Second, func() bool {
		_, err := docs.Get("specs/001-a/spec.md")
		return err == nil
	}) {
		t.Fatal("poll loop never synced the new file")
	}
}

func TestScopeFor(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"specs/001-a/spec.md", "001-a"},
		{"specs/001-a/contracts/api.md", "001-a"},
		{"CLAUDE.md", ""},
		{".specify/memory/constitution.md", ""},
	}
	for _, tt := range tests {
		if got := scopeFor(tt.rel); got != tt.want {
			t.Errorf("scopeFor(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}
