package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracegate/tracegate/internal/upstream"
)

func TestModelsHandler(t *testing.T) {
	upstreamCatalog := `{"object":"list","has_more":false,"data":[` +
		`{"id":"gpt-4","object":"model","created":1687882411,"owned_by":"openai","root":"gpt-4"},` +
		`{"id":"gpt-3.5-turbo","object":"model","created":1677610602,"owned_by":"openai"}]}`

	var gotMethod, gotPath, gotAuth string
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, upstreamCatalog)
	}))
	defer fake.Close()

	store, dir := newAuditStore(t)
	router := newTestRouter(t, registryFor(fake.URL, "http://127.0.0.1:0"), store, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/models", gotPath)
	assert.Equal(t, "Bearer sk-default", gotAuth)

	catalog := struct {
		Object  string           `json:"object"`
		HasMore *bool            `json:"has_more"`
		Data    []map[string]any `json:"data"`
	}{}
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &catalog))

	assert.Equal(t, "list", catalog.Object)
	require.Len(t, catalog.Data, 3)

	// everything the upstream returned passes through untouched, top
	// level fields and provider specific entry fields included
	require.NotNil(t, catalog.HasMore)
	assert.False(t, *catalog.HasMore)
	assert.Equal(t, "gpt-4", catalog.Data[0]["id"])
	assert.Equal(t, "gpt-4", catalog.Data[0]["root"])
	assert.Equal(t, "gpt-3.5-turbo", catalog.Data[1]["id"])

	appended := catalog.Data[2]
	assert.Equal(t, upstream.AltModelId, appended["id"])
	assert.Equal(t, "model", appended["object"])
	assert.Equal(t, "system", appended["owned_by"])
	assert.Greater(t, appended["created"].(float64), float64(0))

	records := readAuditRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, "models", records[0].Endpoint)
	assert.JSONEq(t, `{}`, string(records[0].Request))
	assert.JSONEq(t, w.Body.String(), string(records[0].Response))
}

func TestModelsHandler_UpstreamUnreachable(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := fake.URL
	fake.Close()

	store, dir := newAuditStore(t)
	router := newTestRouter(t, registryFor(url, url), store, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error getting models")
	assert.Empty(t, readAuditRecords(t, dir))
}

func TestModelsHandler_UpstreamErrorStatus(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer fake.Close()

	store, dir := newAuditStore(t)
	router := newTestRouter(t, registryFor(fake.URL, fake.URL), store, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "upstream returned status 401")
	assert.Empty(t, readAuditRecords(t, dir))
}

func TestModelsHandler_MalformedDataField(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":{"not":"a list"}}`)
	}))
	defer fake.Close()

	store, dir := newAuditStore(t)
	router := newTestRouter(t, registryFor(fake.URL, fake.URL), store, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, readAuditRecords(t, dir))
}

func TestModelsHandler_MalformedUpstreamResponse(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer fake.Close()

	store, dir := newAuditStore(t)
	router := newTestRouter(t, registryFor(fake.URL, fake.URL), store, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, readAuditRecords(t, dir))
}
