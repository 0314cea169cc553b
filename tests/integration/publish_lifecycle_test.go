package integration

import (
	"bytes"
	"context"
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
	"github.com/permashare/backend/internal/retention"
	"github.com/permashare/backend/internal/server"
	"github.com/permashare/backend/internal/themes"
)

const secret = "integration-secret"

type stack struct {
	handler http.Handler
	sweeper *retention.Sweeper
	clock   *time.Time
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := objstore.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	clockTime := &now
	clock := func() time.Time { return *clockTime }

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
	sweeper, err := retention.NewSweeper(retention.SweeperConfig{
		Store:      store,
		Repository: repository,
		Images:     imageStore,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("unexpected sweeper error: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:      store,
		Repository: repository,
		Themes:     themeStore,
		Images:     imageStore,
		Renderer:   render.NewEngine(),
		AuthSecret: secret,
		Version:    "integration",
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}

	return &stack{handler: handler, sweeper: sweeper, clock: clockTime}
}

func (s *stack) do(t *testing.T, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	request.Header.Set("Content-Type", "application/json")
	if authorized {
		request.Header.Set("X-Auth-Key", secret)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestPublishViewExpireLifecycle(t *testing.T) {
	stack := newStack(t)

	// Publish a note with a 7-day retention and an attached image.
	share := stack.do(t, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Ephemeral","content":"gone soon","retentionDays":7}`, true)
	if share.Code != http.StatusOK {
		t.Fatalf("unexpected share status %d: %s", share.Code, share.Body.String())
	}
	var published struct {
		URL       string `json:"url"`
		TitleSlug string `json:"titleSlug"`
		Hash      string `json:"hash"`
	}
	if err := json.Unmarshal(share.Body.Bytes(), &published); err != nil {
		t.Fatalf("unexpected share body: %v", err)
	}

	upload := httptest.NewRequest(http.MethodPost, "/api/images/"+published.Hash, bytes.NewReader([]byte{1, 2, 3}))
	upload.Header.Set("X-Auth-Key", secret)
	upload.Header.Set("Content-Type", "image/webp")
	upload.Header.Set("X-Filename", "pic.webp")
	uploadRecorder := httptest.NewRecorder()
	stack.handler.ServeHTTP(uploadRecorder, upload)
	if uploadRecorder.Code != http.StatusOK {
		t.Fatalf("unexpected upload status %d", uploadRecorder.Code)
	}

	viewPath := "/g/demo/" + published.TitleSlug + "/" + published.Hash
	if view := stack.do(t, http.MethodGet, viewPath, "", false); view.Code != http.StatusOK {
		t.Fatalf("expected published note to render, got %d", view.Code)
	}

	// Six days later the note survives the sweep.
	*stack.clock = stack.clock.AddDate(0, 0, 6)
	if _, err := stack.sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}
	if view := stack.do(t, http.MethodGet, viewPath, "", false); view.Code != http.StatusOK {
		t.Fatalf("expected note to survive early sweep, got %d", view.Code)
	}

	// Two more days cross the expiry; note, image and listing all go.
	*stack.clock = stack.clock.AddDate(0, 0, 2)
	result, err := stack.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("expected one expiry, got %+v", result)
	}
	if view := stack.do(t, http.MethodGet, viewPath, "", false); view.Code != http.StatusNotFound {
		t.Fatalf("expected expired note to 404, got %d", view.Code)
	}
	if image := stack.do(t, http.MethodGet, "/i/"+published.Hash+"/pic.webp", "", false); image.Code != http.StatusNotFound {
		t.Fatalf("expected expired note image to 404, got %d", image.Code)
	}
	list := stack.do(t, http.MethodGet, "/api/notes?vault=demo", "", true)
	if strings.TrimSpace(list.Body.String()) != "[]" {
		t.Fatalf("expected empty listing after expiry, got %s", list.Body.String())
	}
}

func TestRepublishKeepsURLAndMovesToFront(t *testing.T) {
	stack := newStack(t)

	first := stack.do(t, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Pinned","content":"v1"}`, true)
	stack.do(t, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Other","content":"x"}`, true)
	second := stack.do(t, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Pinned","content":"v2"}`, true)

	var firstPayload, secondPayload struct {
		URL  string `json:"url"`
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &firstPayload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &secondPayload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if firstPayload.URL != secondPayload.URL {
		t.Fatalf("expected stable URL, got %q then %q", firstPayload.URL, secondPayload.URL)
	}

	list := stack.do(t, http.MethodGet, "/api/notes?vault=demo", "", true)
	var entries []struct {
		TitleSlug string `json:"titleSlug"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unexpected listing: %v", err)
	}
	if len(entries) != 2 || entries[0].TitleSlug != "pinned" {
		t.Fatalf("expected re-published note first, got %+v", entries)
	}

	view := stack.do(t, http.MethodGet, "/g/demo/pinned/"+secondPayload.Hash, "", false)
	if !strings.Contains(view.Body.String(), "v2") {
		t.Fatalf("expected latest content to win")
	}
}

func TestThemeSyncAffectsRenderedNotes(t *testing.T) {
	stack := newStack(t)

	stack.do(t, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Styled","content":"text"}`, true)
	theme := stack.do(t, http.MethodPut, "/api/theme",
		`{"vault":"demo","mode":"dark","theme":{"backgroundColor":"#0b0b0b","accentColor":"#ff00aa"}}`, true)
	if theme.Code != http.StatusOK {
		t.Fatalf("unexpected theme status %d", theme.Code)
	}

	share := stack.do(t, http.MethodPost, "/api/share",
		`{"vault":"demo","title":"Styled","content":"text"}`, true)
	var payload struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(share.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}

	view := stack.do(t, http.MethodGet, "/g/demo/styled/"+payload.Hash, "", false)
	html := view.Body.String()
	if !strings.Contains(html, "#0b0b0b") {
		t.Fatalf("expected synced dark background in page")
	}
	// Light mode keeps its built-in defaults.
	if !strings.Contains(html, "#ffffff") {
		t.Fatalf("expected default light background in page")
	}
}
