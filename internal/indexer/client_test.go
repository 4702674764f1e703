package indexer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbsync/internal/delta"
	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/fetcher"
	"github.com/kbforge/kbsync/internal/indexer"
	"github.com/kbforge/kbsync/internal/utils"
)

const testStoreID = "vs_test"

// fakeVectorStore emulates the files and vector-store endpoints the
// client touches, keeping file contents in memory.
type fakeVectorStore struct {
	mu       sync.Mutex
	nextID   int
	files    map[string]string // file id -> filename
	attached map[string]bool   // file ids attached to the store
	contents map[string]string // file id -> uploaded content
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		files:    make(map[string]string),
		attached: make(map[string]bool),
		contents: make(map[string]string),
	}
}

func (f *fakeVectorStore) seed(filename, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("file-%d", f.nextID)
	f.files[id] = filename
	f.attached[id] = true
	f.contents[id] = content
	return id
}

func (f *fakeVectorStore) attachedFilenames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for id := range f.attached {
		names = append(names, f.files[id])
	}
	sort.Strings(names)
	return names
}

func (f *fakeVectorStore) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("file-%d", f.nextID)
		f.files[id] = header.Filename
		f.contents[id] = string(content)
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"id": id})
	})

	mux.HandleFunc("GET /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		name, ok := f.files[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"filename": name})
	})

	mux.HandleFunc("DELETE /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delete(f.files, r.PathValue("id"))
		delete(f.contents, r.PathValue("id"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	})

	mux.HandleFunc("GET /vector_stores/"+testStoreID+"/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		var ids []string
		for id := range f.attached {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		data := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			data = append(data, map[string]any{"id": id, "status": "completed"})
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"data": data, "has_more": false})
	})

	mux.HandleFunc("POST /vector_stores/"+testStoreID+"/files", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			FileID string `json:"file_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.attached[payload.FileID] = true
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": payload.FileID})
	})

	mux.HandleFunc("DELETE /vector_stores/"+testStoreID+"/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delete(f.attached, r.PathValue("id"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	})

	return mux
}

func newIndexerClient(t *testing.T, baseURL string) *indexer.Client {
	t.Helper()
	client, err := indexer.NewClient(indexer.Options{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		VectorStoreID: testStoreID,
		Retrier: fetcher.RetrierOptions{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
		Logger: utils.NewLogger(utils.LoggerOptions{Level: "error"}),
	})
	require.NoError(t, err)
	return client
}

func segmentsFor(identity string, texts ...string) []domain.Segment {
	segs := make([]domain.Segment, len(texts))
	for i, text := range texts {
		segs[i] = domain.Segment{
			ID:             delta.SegmentID(identity, i),
			Ordinal:        i,
			Text:           text,
			SourceIdentity: identity,
		}
	}
	return segs
}

func TestNewClient_Validation(t *testing.T) {
	var configErr *domain.ConfigurationError

	_, err := indexer.NewClient(indexer.Options{VectorStoreID: testStoreID})
	assert.ErrorAs(t, err, &configErr)

	_, err = indexer.NewClient(indexer.Options{APIKey: "k"})
	assert.ErrorAs(t, err, &configErr)
}

func TestApply_EmptyPlanTouchesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	err := newIndexerClient(t, srv.URL).Apply(context.Background(), &domain.SyncPlan{})
	assert.NoError(t, err)
}

func TestApply_UploadsNewSegments(t *testing.T) {
	store := newFakeVectorStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	identity := "article/1"
	plan := &domain.SyncPlan{
		Upserts: []domain.Upsert{{
			Identity: identity,
			Segments: segmentsFor(identity, "first segment", "second segment"),
		}},
	}

	err := newIndexerClient(t, srv.URL).Apply(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{
		delta.SegmentID(identity, 0) + ".md",
		delta.SegmentID(identity, 1) + ".md",
	}, store.attachedFilenames())
}

func TestApply_ReplacesStaleSegmentsForUpdatedDocument(t *testing.T) {
	store := newFakeVectorStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	identity := "article/1"
	// Prior run left three segments behind; the update has only one.
	store.seed(delta.SegmentID(identity, 0)+".md", "old a")
	store.seed(delta.SegmentID(identity, 1)+".md", "old b")
	store.seed(delta.SegmentID(identity, 2)+".md", "old c")

	plan := &domain.SyncPlan{
		Upserts: []domain.Upsert{{
			Identity: identity,
			Segments: segmentsFor(identity, "new a"),
		}},
	}

	err := newIndexerClient(t, srv.URL).Apply(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{delta.SegmentID(identity, 0) + ".md"}, store.attachedFilenames())
}

func TestApply_DeletesRemovedIdentity(t *testing.T) {
	store := newFakeVectorStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	gone := "article/1"
	kept := "article/2"
	store.seed(delta.SegmentID(gone, 0)+".md", "bye")
	store.seed(delta.SegmentID(kept, 0)+".md", "stay")

	plan := &domain.SyncPlan{Deletions: []string{gone}}

	err := newIndexerClient(t, srv.URL).Apply(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{delta.SegmentID(kept, 0) + ".md"}, store.attachedFilenames())
}

func TestApply_SurfacesIndexError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	plan := &domain.SyncPlan{Deletions: []string{"article/1"}}
	err := newIndexerClient(t, srv.URL).Apply(context.Background(), plan)

	var indexErr *domain.IndexError
	require.ErrorAs(t, err, &indexErr)
	assert.Equal(t, http.StatusUnauthorized, indexErr.StatusCode)
}

func TestStatus_ReportsProcessingState(t *testing.T) {
	store := newFakeVectorStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	store.seed("abc123def456-0000.md", "content")

	reports, err := newIndexerClient(t, srv.URL).Status(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, "abc123def456-0000.md", reports[0].Filename)
	assert.Equal(t, "completed", reports[0].Status)
	assert.Empty(t, reports[0].Error)
}

func TestStatus_EmptyStore(t *testing.T) {
	store := newFakeVectorStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	reports, err := newIndexerClient(t, srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
