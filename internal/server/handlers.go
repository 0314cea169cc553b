package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/permashare/backend/internal/images"
	"github.com/permashare/backend/internal/notes"
	"github.com/permashare/backend/internal/objstore"
	"github.com/permashare/backend/internal/themes"
)

// immutableCache is applied to public note and image responses; both are
// addressed by identity and safe to cache for a year.
const immutableCache = "public, max-age=31536000, immutable"

// maxImageBytes bounds one image upload body.
const maxImageBytes = 20 << 20

type statusResponsePayload struct {
	Status  string `json:"status"`
	R2      bool   `json:"r2"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleStatus probes storage connectivity. A not-found on the probe key is
// a healthy answer; only transport-level faults report degraded storage.
func (h *httpHandler) handleStatus(c *gin.Context) {
	_, err := h.store.Get(c.Request.Context(), "notes/.probe")
	if err != nil && !errors.Is(err, objstore.ErrNotFound) {
		h.logError(c, "status probe failed", err)
		c.JSON(http.StatusInternalServerError, statusResponsePayload{
			Status: "error",
			R2:     false,
			Error:  "storage unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, statusResponsePayload{Status: "ok", R2: true, Version: h.version})
}

type themeRequestPayload struct {
	Vault string          `json:"vault"`
	Mode  string          `json:"mode"`
	Theme themes.Settings `json:"theme"`
}

func (h *httpHandler) handleThemeSync(c *gin.Context) {
	var request themeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Vault) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing vault or mode"})
		return
	}
	mode, err := themes.ParseMode(request.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing vault or mode"})
		return
	}

	if err := h.themes.Set(c.Request.Context(), request.Vault, mode, request.Theme); err != nil {
		h.logError(c, "theme sync failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "theme_sync_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type linkedNotePayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type shareRequestPayload struct {
	Vault         string              `json:"vault"`
	Title         string              `json:"title"`
	Content       string              `json:"content"`
	LinkedNotes   []linkedNotePayload `json:"linkedNotes"`
	RetentionDays int                 `json:"retentionDays"`
}

type shareResponsePayload struct {
	URL       string `json:"url"`
	TitleSlug string `json:"titleSlug"`
	Hash      string `json:"hash"`
}

func (h *httpHandler) handleShare(c *gin.Context) {
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Vault) == "" ||
		strings.TrimSpace(request.Title) == "" ||
		request.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing vault, title or content"})
		return
	}
	if request.RetentionDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "retentionDays must be >= 0"})
		return
	}

	linked := make([]notes.LinkedNoteInput, 0, len(request.LinkedNotes))
	for _, note := range request.LinkedNotes {
		if strings.TrimSpace(note.Title) == "" {
			continue
		}
		linked = append(linked, notes.LinkedNoteInput{Title: note.Title, Content: note.Content})
	}

	result, err := h.repository.Publish(c.Request.Context(), notes.PublishRequest{
		Vault:         request.Vault,
		Title:         request.Title,
		Content:       request.Content,
		LinkedNotes:   linked,
		RetentionDays: request.RetentionDays,
	})
	if err != nil {
		if errors.Is(err, notes.ErrHashCollision) {
			c.JSON(http.StatusConflict, gin.H{"error": "title collides with an existing note"})
			return
		}
		h.logError(c, "share failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "share_failed"})
		return
	}
	c.JSON(http.StatusOK, shareResponsePayload{
		URL:       result.URL,
		TitleSlug: result.TitleSlug,
		Hash:      result.Hash,
	})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	vault := strings.TrimSpace(c.Query("vault"))
	if vault == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing vault"})
		return
	}

	entries, err := h.repository.List(c.Request.Context(), vault)
	if err != nil {
		h.logError(c, "list failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *httpHandler) handleUnshare(c *gin.Context) {
	vault := c.Param("vault")
	titleSlug := c.Param("titleSlug")
	hash := c.Param("hash")

	if err := h.repository.Delete(c.Request.Context(), vault, titleSlug, hash); err != nil {
		h.logError(c, "unshare failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unshare_failed"})
		return
	}
	// Image cleanup is best-effort; the note and its listing are already gone.
	if err := h.images.DeletePrefix(c.Request.Context(), hash); err != nil {
		h.logError(c, "unshare image cleanup failed", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type imageUploadResponsePayload struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *httpHandler) handleImageUpload(c *gin.Context) {
	noteHash := c.Param("noteHash")
	filename := strings.TrimSpace(c.GetHeader("X-Filename"))
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing filename"})
		return
	}
	// The filename becomes the final segment of the object key; path
	// separators would place the object outside the image layout where the
	// public route can never serve it.
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds size limit"})
			return
		}
		h.logError(c, "image body read failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	result, err := h.images.Put(c.Request.Context(), noteHash, filename, contentType, data)
	if err != nil {
		h.logError(c, "image upload failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}
	c.JSON(http.StatusOK, imageUploadResponsePayload{URL: result.URL, Key: result.Key})
}

func (h *httpHandler) handleViewNote(c *gin.Context) {
	vault := c.Param("vault")
	titleSlug := c.Param("titleSlug")
	hash := c.Param("hash")

	note, err := h.repository.Get(c.Request.Context(), titleSlug, hash)
	if errors.Is(err, notes.ErrNoteNotFound) || (err == nil && note.Vault != vault) {
		// Vault mismatch renders the same page as absence so a guessed hash
		// cannot confirm a note exists in another vault.
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(h.renderer.RenderNotFound()))
		return
	}
	if err != nil {
		h.logError(c, "note view failed", err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	// A theme fault degrades to defaults; the note still renders.
	theme, err := h.themes.Get(c.Request.Context(), vault)
	if err != nil {
		h.logError(c, "theme load failed", err)
		theme = nil
	}

	c.Header("Cache-Control", immutableCache)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(h.renderer.RenderPage(note, theme)))
}

func (h *httpHandler) handleViewImage(c *gin.Context) {
	noteHash := c.Param("noteHash")
	filename := c.Param("filename")

	image, err := h.images.Get(c.Request.Context(), noteHash, filename)
	if errors.Is(err, images.ErrImageNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		h.logError(c, "image view failed", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", immutableCache)
	c.Data(http.StatusOK, contentType, image.Data)
}

func (h *httpHandler) logError(c *gin.Context, message string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if id := c.GetString(requestIDContextKey); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	h.logger.Error(message, fields...)
}
