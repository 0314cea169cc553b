package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/permashare/backend/internal/images"
	"github.com/permashare/backend/internal/notes"
	"github.com/permashare/backend/internal/objstore"
	"github.com/permashare/backend/internal/render"
	"github.com/permashare/backend/internal/themes"
)

const testSecret = "test-secret"

func newTestHandler(t *testing.T) (http.Handler, *objstore.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := objstore.NewMemoryStore()
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }

	repository, err := notes.NewRepository(notes.RepositoryConfig{
		Store:   store,
		Clock:   clock,
		BaseURL: "https://share.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected repository error: %v", err)
	}
	themeStore, err := themes.NewStore(themes.StoreConfig{Store: store, Clock: clock})
	if err != nil {
		t.Fatalf("unexpected theme store error: %v", err)
	}
	imageStore, err := images.NewStore(images.StoreConfig{Store: store, BaseURL: "https://share.example.com"})
	if err != nil {
		t.Fatalf("unexpected image store error: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Store:      store,
		Repository: repository,
		Themes:     themeStore,
		Images:     imageStore,
		Renderer:   render.NewEngine(),
		AuthSecret: testSecret,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	return handler, store
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if authorized {
		request.Header.Set(authHeader, testSecret)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestAPIRejectsMissingSecret(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/status", "", false)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
}

func TestAPIRejectsWrongSecret(t *testing.T) {
	handler, _ := newTestHandler(t)
	request := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	request.Header.Set(authHeader, "wrong")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
}

func TestStatusReportsHealthyStorage(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/status", "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload statusResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if payload.Status != "ok" || !payload.R2 || payload.Version != "test" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestShareRejectsMissingFields(t *testing.T) {
	handler, store := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodPost, "/api/share", `{"vault":"demo"}`, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("validation failure must not touch storage, got %d objects", store.Len())
	}
}

func TestShareReturnsPredictableURL(t *testing.T) {
	handler, _ := newTestHandler(t)
	body := `{"vault":"demo","title":"Hello World","content":"# Hi\n==important==\n#tag"}`
	recorder := doJSON(t, handler, http.MethodPost, "/api/share", body, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload shareResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if payload.TitleSlug != "hello-world" || len(payload.Hash) != 8 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if !strings.HasPrefix(payload.URL, "https://share.example.com/g/demo/hello-world/") {
		t.Fatalf("unexpected url %q", payload.URL)
	}
}

func TestSharedNoteRendersWithDialect(t *testing.T) {
	handler, _ := newTestHandler(t)
	body := `{"vault":"demo","title":"Hello World","content":"# Hi\n==important==\n#tag"}`
	recorder := doJSON(t, handler, http.MethodPost, "/api/share", body, true)
	var payload shareResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}

	view := doJSON(t, handler, http.MethodGet, "/g/demo/hello-world/"+payload.Hash, "", false)
	if view.Code != http.StatusOK {
		t.Fatalf("expected ok view, got %d", view.Code)
	}
	html := view.Body.String()
	if !strings.Contains(html, "<mark>important</mark>") {
		t.Fatalf("expected highlight in view, got %s", html)
	}
	if !strings.Contains(html, `<span class="tag">#tag</span>`) {
		t.Fatalf("expected tag chip in view, got %s", html)
	}
	if cache := view.Header().Get("Cache-Control"); !strings.Contains(cache, "immutable") {
		t.Fatalf("expected immutable cache header, got %q", cache)
	}
}

func TestViewLinkedNotes(t *testing.T) {
	handler, _ := newTestHandler(t)
	body := `{"vault":"demo","title":"A","content":"see [[B]]","linkedNotes":[{"title":"B","content":"linked body"}]}`
	recorder := doJSON(t, handler, http.MethodPost, "/api/share", body, true)
	var payload shareResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}

	view := doJSON(t, handler, http.MethodGet, "/g/demo/a/"+payload.Hash, "", false)
	if view.Code != http.StatusOK {
		t.Fatalf("expected ok view, got %d", view.Code)
	}
	html := view.Body.String()
	linkStart := strings.Index(html, `href="/g/demo/b/`)
	if linkStart < 0 {
		t.Fatalf("expected resolved link to B, got %s", html)
	}
	linkedHash := html[linkStart+len(`href="/g/demo/b/`):][:8]

	linkedView := doJSON(t, handler, http.MethodGet, "/g/demo/b/"+linkedHash, "", false)
	if linkedView.Code != http.StatusOK {
		t.Fatalf("expected linked note to be viewable, got %d", linkedView.Code)
	}
	if !strings.Contains(linkedView.Body.String(), "linked body") {
		t.Fatalf("unexpected linked note body")
	}
}

func TestViewUnknownNoteReturnsNotFoundPage(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/g/demo/ghost/00000000", "", false)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "Note not found") {
		t.Fatalf("expected public not-found page")
	}
}

func TestViewVaultMismatchIsIndistinguishableFromAbsence(t *testing.T) {
	handler, _ := newTestHandler(t)
	body := `{"vault":"demo","title":"Hello","content":"x"}`
	recorder := doJSON(t, handler, http.MethodPost, "/api/share", body, true)
	var payload shareResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}

	direct := doJSON(t, handler, http.MethodGet, "/g/other/hello/"+payload.Hash, "", false)
	missing := doJSON(t, handler, http.MethodGet, "/g/other/hello/ffffffff", "", false)
	if direct.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for both, got %d and %d", direct.Code, missing.Code)
	}
	if direct.Body.String() != missing.Body.String() {
		t.Fatalf("vault mismatch must be indistinguishable from absence")
	}
}

func TestListNotesRequiresVault(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/notes", "", true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
}

func TestListNotesReturnsEmptyArrayForUnknownVault(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/notes?vault=ghost", "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	if strings.TrimSpace(recorder.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", recorder.Body.String())
	}
}

func TestUnshareIsIdempotent(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"vault":"demo","title":"Hello","content":"x"}`
	recorder := doJSON(t, handler, http.MethodPost, "/api/share", body, true)
	var payload shareResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}

	path := "/api/notes/demo/" + payload.TitleSlug + "/" + payload.Hash
	first := doJSON(t, handler, http.MethodDelete, path, "", true)
	second := doJSON(t, handler, http.MethodDelete, path, "", true)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected idempotent delete, got %d and %d", first.Code, second.Code)
	}

	view := doJSON(t, handler, http.MethodGet, "/g/demo/"+payload.TitleSlug+"/"+payload.Hash, "", false)
	if view.Code != http.StatusNotFound {
		t.Fatalf("expected deleted note to 404, got %d", view.Code)
	}
}

func TestThemeSyncValidatesAndApplies(t *testing.T) {
	handler, _ := newTestHandler(t)

	missing := doJSON(t, handler, http.MethodPut, "/api/theme", `{"mode":"dark"}`, true)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing vault, got %d", missing.Code)
	}
	badMode := doJSON(t, handler, http.MethodPut, "/api/theme", `{"vault":"demo","mode":"sepia"}`, true)
	if badMode.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown mode, got %d", badMode.Code)
	}

	ok := doJSON(t, handler, http.MethodPut, "/api/theme",
		`{"vault":"demo","mode":"dark","theme":{"backgroundColor":"#123456"}}`, true)
	if ok.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", ok.Code, ok.Body.String())
	}

	// The synced dark background must show up in a rendered note.
	share := doJSON(t, handler, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Hello","content":"x"}`, true)
	var payload shareResponsePayload
	if err := json.Unmarshal(share.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	view := doJSON(t, handler, http.MethodGet, "/g/demo/hello/"+payload.Hash, "", false)
	if !strings.Contains(view.Body.String(), "#123456") {
		t.Fatalf("expected synced dark theme in rendered page")
	}
}

func TestImageUploadAndServe(t *testing.T) {
	handler, _ := newTestHandler(t)

	request := httptest.NewRequest(http.MethodPost, "/api/images/a1b2c3d4", bytes.NewReader([]byte{0x52, 0x49, 0x46, 0x46}))
	request.Header.Set(authHeader, testSecret)
	request.Header.Set("Content-Type", "image/webp")
	request.Header.Set("X-Filename", "chart.webp")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok upload, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload imageUploadResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if payload.Key != "images/a1b2c3d4/chart.webp" {
		t.Fatalf("unexpected key %q", payload.Key)
	}

	view := doJSON(t, handler, http.MethodGet, "/i/a1b2c3d4/chart.webp", "", false)
	if view.Code != http.StatusOK {
		t.Fatalf("expected ok image view, got %d", view.Code)
	}
	if view.Header().Get("Content-Type") != "image/webp" {
		t.Fatalf("unexpected content type %q", view.Header().Get("Content-Type"))
	}
	if !strings.Contains(view.Header().Get("Cache-Control"), "max-age=31536000") {
		t.Fatalf("expected 1-year cache, got %q", view.Header().Get("Cache-Control"))
	}
}

func TestImageUploadRequiresFilename(t *testing.T) {
	handler, _ := newTestHandler(t)
	request := httptest.NewRequest(http.MethodPost, "/api/images/a1b2c3d4", bytes.NewReader([]byte{1}))
	request.Header.Set(authHeader, testSecret)
	request.Header.Set("Content-Type", "image/webp")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
}

func TestImageUploadRejectsOversizedBody(t *testing.T) {
	handler, store := newTestHandler(t)

	request := httptest.NewRequest(http.MethodPost, "/api/images/a1b2c3d4",
		bytes.NewReader(make([]byte, maxImageBytes+1)))
	request.Header.Set(authHeader, testSecret)
	request.Header.Set("Content-Type", "image/webp")
	request.Header.Set("X-Filename", "huge.webp")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", recorder.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("oversized upload must not store anything, got %d objects", store.Len())
	}
}

func TestImageUploadRejectsPathSeparatorsInFilename(t *testing.T) {
	handler, store := newTestHandler(t)

	for _, filename := range []string{"a/b.webp", `a\b.webp`, "../../demo/index.json"} {
		request := httptest.NewRequest(http.MethodPost, "/api/images/a1b2c3d4", bytes.NewReader([]byte{1}))
		request.Header.Set(authHeader, testSecret)
		request.Header.Set("Content-Type", "image/webp")
		request.Header.Set("X-Filename", filename)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected bad request for filename %q, got %d", filename, recorder.Code)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("rejected uploads must not store anything, got %d objects", store.Len())
	}
}

func TestViewMissingImageReturns404(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/i/a1b2c3d4/ghost.webp", "", false)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestNewHTTPHandlerValidatesDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected dependency validation error")
	}
}
