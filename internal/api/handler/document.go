package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/service"
)

// DocumentHandler handles document and similarity endpoints.
type DocumentHandler struct {
	documents        *service.DocumentService
	similarity       *service.Similarity
	defaultThreshold float64
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - documents: document service.
//   - similarity: similarity engine for free-text neighbours.
//   - defaultThreshold: applied when a request gives no threshold.
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(documents *service.DocumentService, similarity *service.Similarity, defaultThreshold float64) *DocumentHandler {
	return &DocumentHandler{
		documents:        documents,
		similarity:       similarity,
		defaultThreshold: defaultThreshold,
	}
}

// DocumentListResponse is the body of GET /api/v1/models/:model_id/documents.
type DocumentListResponse struct {
	Documents []string `json:"documents"`
	Total     int      `json:"total"`
}

// AssignRequest is the body of PUT /api/v1/models/:model_id/documents.
type AssignRequest struct {
	Data map[string]string `json:"data" binding:"required"`
}

// AssignResponse lists the topics assigned to submitted documents.
type AssignResponse struct {
	Assignments []domain.TopicAssignment `json:"assignments"`
}

// NeighborsResponse is a similarity ranking, best first.
type NeighborsResponse struct {
	Neighbors []domain.Neighbor `json:"neighbors"`
}

// ListDocuments handles GET /api/v1/models/:model_id/documents.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	ids, err := h.documents.List(c.Request.Context(), c.Param("model_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DocumentListResponse{Documents: ids, Total: len(ids)})
}

// AssignDocuments handles PUT /api/v1/models/:model_id/documents.
// Topics are inferred and stored; existing documents keep their text.
func (h *DocumentHandler) AssignDocuments(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	assignments, err := h.documents.Assign(c.Request.Context(), c.Param("model_id"), req.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AssignResponse{Assignments: assignments})
}

// GetDocument handles GET /api/v1/models/:model_id/documents/:document_id.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	threshold, ok := queryThreshold(c, h.defaultThreshold)
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), c.Param("model_id"), c.Param("document_id"), threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DocumentNeighbors handles GET /api/v1/models/:model_id/documents/:document_id/neighbors.
func (h *DocumentHandler) DocumentNeighbors(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	neighbors, err := h.documents.Neighbors(c.Request.Context(), c.Param("model_id"), c.Param("document_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NeighborsResponse{Neighbors: neighbors})
}

// TextNeighbors handles GET /api/v1/models/:model_id/neighbors?text=.
func (h *DocumentHandler) TextNeighbors(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		badRequest(c, "text is required")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	neighbors, err := h.similarity.NeighborsOfQuery(c.Request.Context(), c.Param("model_id"), text, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NeighborsResponse{Neighbors: neighbors})
}
