package api

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"testcasegpt/internal/api/uistatic"
	"testcasegpt/internal/prompt"
	"testcasegpt/internal/service/ai"
	"testcasegpt/internal/service/assistant"
	"testcasegpt/internal/worker"
)

const defaultMaxUploadBytes = 32 << 20

// Handler wires HTTP routes to the assistant service.
type Handler struct {
	assistant      *assistant.Service
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance. maxUploadBytes bounds one
// multipart request, 0 selects the default.
func NewHandler(service *assistant.Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{assistant: service, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/favicon.ico", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/health", h.health)
	api.GET("/context", h.listContext)
	api.POST("/context/upload", h.uploadContext)
	api.POST("/chat-sql", h.chatSQL)
	api.POST("/analyze", h.analyze)
	api.POST("/ask", h.ask)
}

func (h *Handler) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", uistatic.Index)
}

func (h *Handler) health(c *gin.Context) {
	st := h.assistant.Status()
	var model any
	if st.Model != "" {
		model = st.Model
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"provider":      st.Provider,
		"model":         model,
		"context_items": st.ContextItems,
	})
}

func (h *Handler) listContext(c *gin.Context) {
	items := h.assistant.Context()
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) uploadContext(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	form := c.Request.MultipartForm
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	uploads := make([]assistant.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed: " + fh.Filename})
			return
		}
		uploads = append(uploads, assistant.Upload{Name: filepath.Base(fh.Filename), Data: data})
	}
	added, total := h.assistant.Ingest(uploads)
	c.JSON(http.StatusOK, gin.H{"ok": true, "added": added, "total": total})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type chatSQLRequest struct {
	Message string `json:"message"`
}

func (h *Handler) chatSQL(c *gin.Context) {
	var req chatSQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	suggestion, source, err := h.assistant.ChatSQL(clientContext(c), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("X-SQL-Source", string(source))
	c.JSON(http.StatusOK, suggestion)
}

func (h *Handler) analyze(c *gin.Context) {
	analysis, err := h.assistant.Analyze(clientContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	answer, err := h.assistant.Ask(clientContext(c), req.Question)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// clientContext tags the request context with the caller address so the
// dispatcher can queue fairly across clients.
func clientContext(c *gin.Context) context.Context {
	return worker.WithClient(c.Request.Context(), c.ClientIP())
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, assistant.ErrValidation), errors.Is(err, assistant.ErrEmptyContext):
		status = http.StatusBadRequest
	case errors.Is(err, prompt.ErrContextTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		return
	case errors.Is(err, ai.ErrUnconfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ai.ErrAuth), errors.Is(err, ai.ErrTransport),
		errors.Is(err, ai.ErrProvider), errors.Is(err, ai.ErrMalformedResponse):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
