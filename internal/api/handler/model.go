package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/service"
)

// ModelHandler handles model lifecycle endpoints.
type ModelHandler struct {
	models *service.ModelService
}

// NewModelHandler creates a new model handler.
// Parameters:
//   - models: model lifecycle service.
// Returns:
//   - *ModelHandler: initialized handler.
func NewModelHandler(models *service.ModelService) *ModelHandler {
	return &ModelHandler{models: models}
}

// ModelListResponse is the body of GET /api/v1/models.
type ModelListResponse struct {
	Models []domain.Model `json:"models"`
	Total  int            `json:"total"`
}

// UpdateModelRequest is the body of PATCH /api/v1/models/:model_id.
type UpdateModelRequest struct {
	Description *string `json:"description" binding:"required"`
}

// ListModels handles GET /api/v1/models.
func (h *ModelHandler) ListModels(c *gin.Context) {
	models, err := h.models.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if models == nil {
		models = []domain.Model{}
	}
	c.JSON(http.StatusOK, ModelListResponse{Models: models, Total: len(models)})
}

// CreateModel handles PUT /api/v1/models.
// The model is registered and its training scheduled; the response does not wait for training.
func (h *ModelHandler) CreateModel(c *gin.Context) {
	var req service.CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	m, err := h.models.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GetModel handles GET /api/v1/models/:model_id.
func (h *ModelHandler) GetModel(c *gin.Context) {
	m, err := h.models.Get(c.Request.Context(), c.Param("model_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// UpdateModel handles PATCH /api/v1/models/:model_id.
func (h *ModelHandler) UpdateModel(c *gin.Context) {
	var req UpdateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	m, err := h.models.UpdateDescription(c.Request.Context(), c.Param("model_id"), *req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteModel handles DELETE /api/v1/models/:model_id.
// A scheduled or computing model has its job interrupted first.
func (h *ModelHandler) DeleteModel(c *gin.Context) {
	if err := h.models.Delete(c.Request.Context(), c.Param("model_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
