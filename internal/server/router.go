package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/permashare/backend/internal/images"
	"github.com/permashare/backend/internal/notes"
	"github.com/permashare/backend/internal/objstore"
	"github.com/permashare/backend/internal/render"
	"github.com/permashare/backend/internal/themes"
)

const requestIDContextKey = "permashare_request_id"

var (
	errMissingStore      = errors.New("object store dependency required")
	errMissingRepository = errors.New("note repository dependency required")
	errMissingThemes     = errors.New("theme store dependency required")
	errMissingImages     = errors.New("image store dependency required")
	errMissingRenderer   = errors.New("render engine dependency required")
	errMissingAuthSecret = errors.New("auth secret required")
)

// Dependencies wires the handler stack.
type Dependencies struct {
	Store      objstore.Store
	Repository *notes.Repository
	Themes     *themes.Store
	Images     *images.Store
	Renderer   *render.Engine
	AuthSecret string
	Version    string
	Logger     *zap.Logger
}

// NewHTTPHandler validates dependencies and builds the HTTP surface. The
// /api routes require the shared secret; /g and /i are public by design.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Repository == nil {
		return nil, errMissingRepository
	}
	if deps.Themes == nil {
		return nil, errMissingThemes
	}
	if deps.Images == nil {
		return nil, errMissingImages
	}
	if deps.Renderer == nil {
		return nil, errMissingRenderer
	}
	if deps.AuthSecret == "" {
		return nil, errMissingAuthSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Auth-Key", "X-Filename"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		store:      deps.Store,
		repository: deps.Repository,
		themes:     deps.Themes,
		images:     deps.Images,
		renderer:   deps.Renderer,
		version:    deps.Version,
		logger:     logger,
	}

	api := router.Group("/api")
	api.Use(authorizeRequest(deps.AuthSecret))
	api.GET("/status", handler.handleStatus)
	api.PUT("/theme", handler.handleThemeSync)
	api.POST("/share", handler.handleShare)
	api.GET("/notes", handler.handleListNotes)
	api.DELETE("/notes/:vault/:titleSlug/:hash", handler.handleUnshare)
	api.POST("/images/:noteHash", handler.handleImageUpload)

	router.GET("/g/:vault/:titleSlug/:hash", handler.handleViewNote)
	router.GET("/i/:noteHash/:filename", handler.handleViewImage)

	return router, nil
}

type httpHandler struct {
	store      objstore.Store
	repository *notes.Repository
	themes     *themes.Store
	images     *images.Store
	renderer   *render.Engine
	version    string
	logger     *zap.Logger
}

// authHeader carries the shared secret on every /api request.
const authHeader = "X-Auth-Key"

// authorizeRequest rejects the request before any handler logic unless the
// shared secret matches exactly. Comparison is constant-time.
func authorizeRequest(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		provided := []byte(c.GetHeader(authHeader))
		if len(provided) == 0 || subtle.ConstantTimeCompare(expected, provided) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// requestID tags every request with a UUIDv7, echoed in the response for
// log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.NewV7()
		if err == nil {
			c.Set(requestIDContextKey, id.String())
			c.Header("X-Request-Id", id.String())
		}
		c.Next()
	}
}
