package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/listing"
	memorystorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/memory"
)

// setupChunkHandlerTest creates a router over an in-memory store with 4 byte chunks
func setupChunkHandlerTest(t *testing.T) (http.Handler, chunkstore.Service, *memorystorage.Backend) {
	t.Helper()
	store := memorystorage.New()
	service, err := chunkstore.New(
		chunkstore.WithStore(store),
		chunkstore.WithMaxChunkSize(4),
	)
	require.NoError(t, err)

	formatters := listing.NewFormatters()
	listings := listing.NewStitcher(listing.NewStoreSource(store, formatters), chunkstore.NewStitcher(store), formatters,
		listing.WithTempDir(t.TempDir()))

	router := chi.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Mount("/spaces", NewChunkHandler(service, listings, nil).Routes())
	return router, service, store
}

func serve(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChunkHandler_PutAndGet(t *testing.T) {
	router, _, _ := setupChunkHandlerTest(t)
	data := []byte("a body spanning several chunks")

	req := httptest.NewRequest(http.MethodPut, "/spaces/space/content/dir/file.txt", bytes.NewReader(data))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp ManifestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "dir/file.txt.dura-manifest", resp.ManifestID)
	assert.Equal(t, "dir/file.txt", resp.SourceContentID)
	assert.Equal(t, int64(len(data)), resp.ByteSize)
	assert.Equal(t, chunkstore.ChecksumBytes(data), resp.MD5)
	assert.Len(t, resp.Chunks, 8)

	w = serve(router, http.MethodGet, "/spaces/space/content/dir/file.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "30", w.Header().Get("Content-Length"))
	assert.Equal(t, `"`+chunkstore.ChecksumBytes(data)+`"`, w.Header().Get("ETag"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// the manifest id addresses the same item
	w = serve(router, http.MethodGet, "/spaces/space/content/dir/file.txt.dura-manifest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
}

func TestChunkHandler_PutChunkSize(t *testing.T) {
	router, _, _ := setupChunkHandlerTest(t)

	w := serve(router, http.MethodPut, "/spaces/space/content/big?chunk_size=10", []byte(strings.Repeat("x", 25)))
	require.Equal(t, http.StatusCreated, w.Code)
	var resp ManifestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Chunks, 3)

	w = serve(router, http.MethodPut, "/spaces/space/content/big?chunk_size=-1", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkHandler_PutRejectsReservedID(t *testing.T) {
	router, _, _ := setupChunkHandlerTest(t)

	w := serve(router, http.MethodPut, "/spaces/space/content/x.dura-manifest", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkHandler_PutRejectsWrongContentLength(t *testing.T) {
	router, _, _ := setupChunkHandlerTest(t)

	req := httptest.NewRequest(http.MethodPut, "/spaces/space/content/short.bin", bytes.NewReader([]byte("abc")))
	req.ContentLength = 10
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "size_mismatch", resp.Code)
}

func TestChunkHandler_GetMissing(t *testing.T) {
	router, _, _ := setupChunkHandlerTest(t)

	w := serve(router, http.MethodGet, "/spaces/space/content/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestChunkHandler_Verify(t *testing.T) {
	router, service, store := setupChunkHandlerTest(t)
	ctx := context.Background()
	_, err := service.Chunk(ctx, chunkstore.ChunkRequest{
		Container: "space", SourceContentID: "v", Size: 8, Body: bytes.NewReader([]byte("aaaabbbb")),
	})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/spaces/space/verify/v", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Results, 2)

	_, err = store.Put(ctx, "space", "v.dura-chunk-0001", chunkstore.PutParams{Size: -1}, bytes.NewReader([]byte("BBBB")))
	require.NoError(t, err)
	w = serve(router, http.MethodGet, "/spaces/space/verify/v", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)

	for _, id := range []string{"v.dura-chunk-0000", "v.dura-chunk-0001"} {
		require.NoError(t, store.Delete(ctx, "space", id))
	}
	w = serve(router, http.MethodGet, "/spaces/space/verify/v", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChunkHandler_ManifestCopyDelete(t *testing.T) {
	router, _, store := setupChunkHandlerTest(t)
	require.Equal(t, http.StatusCreated, serve(router, http.MethodPut, "/spaces/src/content/m.bin", []byte("0123456789")).Code)

	w := serve(router, http.MethodGet, "/spaces/src/manifest/m.bin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var manifest ManifestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifest))
	assert.Len(t, manifest.Chunks, 3)
	assert.Equal(t, "m.bin.dura-chunk-0002", manifest.Chunks[2].ChunkID)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/spaces/src/copy/m.bin", nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPost, "/spaces/src/copy/m.bin?to=dst", nil).Code)

	w = serve(router, http.MethodGet, "/spaces/dst/manifests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Manifests []string `json:"manifests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"m.bin.dura-manifest"}, list.Manifests)

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/spaces/src/content/m.bin", nil).Code)
	ids, err := store.List(context.Background(), "src", "")
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/spaces/src/content/m.bin", nil).Code)
}

func TestChunkHandler_Listing(t *testing.T) {
	router, _, store := setupChunkHandlerTest(t)
	_, err := store.Put(context.Background(), "space", "a.txt", chunkstore.PutParams{Size: 1}, bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, serve(router, http.MethodPut, "/spaces/space/content/b.txt", []byte("chunked!")).Code)

	w := serve(router, http.MethodGet, "/spaces/space/listing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"space-id\tcontent-id\tMD5\n"+
			"space\ta.txt\t"+chunkstore.ChecksumBytes([]byte("a"))+"\n"+
			"space\tb.txt\t"+chunkstore.ChecksumBytes([]byte("chunked!"))+"\n",
		w.Body.String())

	w = serve(router, http.MethodGet, "/spaces/space/listing?format=bagit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "  data/b.txt\n")

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/spaces/space/listing?format=xml", nil).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}
