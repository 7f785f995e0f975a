package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/imagestore"
)

// QueryRequest is the body of /v1/ask and /v1/retrieve.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	K        int    `json:"k" binding:"gte=0"`
}

// CitationResponse is a chunk the answer was based on.
type CitationResponse struct {
	ChunkID  string  `json:"chunk_id"`
	Document string  `json:"document"`
	Pages    []int   `json:"pages"`
	Score    float32 `json:"score"`
	Snippet  string  `json:"snippet,omitempty"`
}

// ImageResponse describes an image found on a retrieved page.
type ImageResponse struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	Index    int    `json:"index"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
}

// AskResponse is the body returned by /v1/ask.
type AskResponse struct {
	RequestID string             `json:"request_id"`
	Question  string             `json:"question"`
	Answer    string             `json:"answer"`
	Citations []CitationResponse `json:"citations"`
	Images    []ImageResponse    `json:"images"`
}

// ChunkResponse is a ranked chunk returned by /v1/retrieve.
type ChunkResponse struct {
	ChunkID  string            `json:"chunk_id"`
	Document string            `json:"document"`
	Pages    []int             `json:"pages"`
	Score    float32           `json:"score"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetrieveResponse is the body returned by /v1/retrieve.
type RetrieveResponse struct {
	RequestID string          `json:"request_id"`
	Question  string          `json:"question"`
	Chunks    []ChunkResponse `json:"chunks"`
	Images    []ImageResponse `json:"images"`
}

// ErrorResponse is the body of every failed request. Category is stable and
// meant for clients to branch on; Error is for people. Server-side failures
// carry a fixed Error text and the cause is only logged.
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Category  string `json:"category"`
	Error     string `json:"error"`
}

// Error categories.
const (
	CategoryInvalidQuery       = "invalid_query"
	CategoryInvalidPath        = "invalid_path"
	CategoryNotFound           = "not_found"
	CategoryNothingIndexed     = "nothing_indexed"
	CategoryServiceUnavailable = "service_unavailable"
	CategoryTimeout            = "timeout"
	CategoryInternal           = "internal"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "docqa",
	})
}

func (s *Server) ready(c *gin.Context) {
	stats, err := s.backend.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"entries": stats.Entries,
		"indexed": stats.Entries > 0,
	})
}

func (s *Server) ask(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	ans, err := s.backend.Ask(c.Request.Context(), req.Question, req.K)
	if err != nil {
		s.fail(c, err)
		return
	}

	citations := make([]CitationResponse, len(ans.Citations))
	for i, ct := range ans.Citations {
		citations[i] = CitationResponse{
			ChunkID:  formatID(ct.ChunkID),
			Document: ct.DocumentID,
			Pages:    ct.Pages,
			Score:    ct.Score,
			Snippet:  ct.Snippet,
		}
	}

	c.JSON(http.StatusOK, AskResponse{
		RequestID: c.GetString(requestIDKey),
		Question:  ans.Question,
		Answer:    ans.Text,
		Citations: citations,
		Images:    s.imageResponses(ans.Images),
	})
}

func (s *Server) retrieve(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	result, err := s.backend.Retrieve(c.Request.Context(), req.Question, req.K)
	if err != nil {
		s.fail(c, err)
		return
	}

	chunks := make([]ChunkResponse, len(result.Chunks))
	for i, sc := range result.Chunks {
		chunks[i] = ChunkResponse{
			ChunkID:  formatID(sc.Chunk.ID),
			Document: sc.Chunk.DocumentID,
			Pages:    sc.Chunk.Pages,
			Score:    sc.Score,
			Text:     sc.Chunk.Text,
			Metadata: sc.Metadata,
		}
	}

	c.JSON(http.StatusOK, RetrieveResponse{
		RequestID: c.GetString(requestIDKey),
		Question:  result.Question,
		Chunks:    chunks,
		Images:    s.imageResponses(result.Images),
	})
}

func (s *Server) image(c *gin.Context) {
	if s.images == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			RequestID: c.GetString(requestIDKey),
			Category:  CategoryNotFound,
			Error:     "image storage disabled",
		})
		return
	}

	rel := strings.TrimPrefix(c.Param("path"), "/")
	full, err := s.images.Resolve(rel)
	if err != nil {
		s.fail(c, err)
		return
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, ErrorResponse{
			RequestID: c.GetString(requestIDKey),
			Category:  CategoryNotFound,
			Error:     "image not found",
		})
		return
	}
	c.File(full)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.backend.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) imageResponses(refs []core.ImageRef) []ImageResponse {
	out := make([]ImageResponse, len(refs))
	for i, r := range refs {
		out[i] = ImageResponse{
			Document: r.DocumentID,
			Page:     r.Page,
			Index:    r.Index,
			Width:    r.Width,
			Height:   r.Height,
			Path:     r.Path,
		}
		if r.Path != "" && s.images != nil {
			out[i].URL = "/v1/images/" + r.Path
		}
	}
	return out
}

// badRequest rejects a request body that could not be bound. The binding
// error only describes the client's own input.
func (s *Server) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		RequestID: c.GetString(requestIDKey),
		Category:  CategoryInvalidQuery,
		Error:     err.Error(),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status, category := classify(err)
	c.JSON(status, ErrorResponse{
		RequestID: c.GetString(requestIDKey),
		Category:  category,
		Error:     clientMessage(status, category, err),
	})
}

// StatusFor maps a pipeline error to an HTTP status code.
func StatusFor(err error) int {
	status, _ := classify(err)
	return status
}

// CategoryFor maps a pipeline error to its ErrorResponse category.
func CategoryFor(err error) string {
	_, category := classify(err)
	return category
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidQuery):
		return http.StatusBadRequest, CategoryInvalidQuery
	case errors.Is(err, imagestore.ErrInvalidPath):
		return http.StatusBadRequest, CategoryInvalidPath
	case errors.Is(err, core.ErrNothingIndexed):
		return http.StatusConflict, CategoryNothingIndexed
	case errors.Is(err, core.ErrEmbeddingService), errors.Is(err, core.ErrSynthesisService):
		return http.StatusServiceUnavailable, CategoryServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CategoryTimeout
	default:
		return http.StatusInternalServerError, CategoryInternal
	}
}

// clientMessage returns the Error text for a failed request. Client errors
// echo the cause, which only restates the request. Anything 5xx gets a fixed
// text since causes can carry upstream URLs and credentials.
func clientMessage(status int, category string, err error) string {
	if status < http.StatusInternalServerError {
		if category == CategoryNothingIndexed {
			return "no documents have been indexed yet"
		}
		return err.Error()
	}
	switch category {
	case CategoryServiceUnavailable:
		return "model service unavailable"
	case CategoryTimeout:
		return "request timed out"
	default:
		return "internal error"
	}
}

func formatID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}
