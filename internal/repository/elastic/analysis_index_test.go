package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mareye-api/internal/client"
	"mareye-api/internal/models"
)

// fakeES answers like an Elasticsearch node; the product header is required by the client.
func fakeES(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body []byte)) *client.ESClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handle(w, r, body)
	}))
	t.Cleanup(srv.Close)

	es, err := client.NewElasticsearchClientWithTransport(srv.URL, http.DefaultTransport)
	require.NoError(t, err)
	return es
}

func TestAnalysisIndexIndex(t *testing.T) {
	var gotPath string
	var gotDoc models.AnalysisDocument
	es := fakeES(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		gotPath = r.URL.Path
		_ = json.Unmarshal(body, &gotDoc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	idx := NewAnalysisIndex(es, "mareye-analyses")
	doc := models.AnalysisDocument{ID: "abc", UserID: "u1", Title: "Chelonia mydas", CreatedAt: time.Now().UTC()}
	require.NoError(t, idx.Index(context.Background(), doc))

	assert.Equal(t, "/mareye-analyses/_doc/abc", gotPath)
	assert.Equal(t, "u1", gotDoc.UserID)
}

func TestAnalysisIndexSearchFiltersByUser(t *testing.T) {
	var query string
	es := fakeES(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		query = string(body)
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_source":{"id":"1","userId":"u1","title":"Green sea turtle"}}]}}`))
	})

	idx := NewAnalysisIndex(es, "mareye-analyses")
	docs, err := idx.Search(context.Background(), "u1", "turtle", 20)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "Green sea turtle", docs[0].Title)
	assert.True(t, strings.Contains(query, `"userId":"u1"`))
	assert.True(t, strings.Contains(query, `"query":"turtle"`))
}

func TestAnalysisIndexSearchSurfacesErrors(t *testing.T) {
	es := fakeES(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"reason":"no such index"}}`))
	})

	_, err := NewAnalysisIndex(es, "missing").Search(context.Background(), "u1", "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such index")
}
