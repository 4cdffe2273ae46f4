package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/service"
)

// TopicHandler handles the topic catalogue endpoints.
type TopicHandler struct {
	topics           *service.TopicService
	defaultThreshold float64
}

// NewTopicHandler creates a new topic handler.
// Parameters:
//   - topics: topic service.
//   - defaultThreshold: applied when a request gives no threshold.
// Returns:
//   - *TopicHandler: initialized handler.
func NewTopicHandler(topics *service.TopicService, defaultThreshold float64) *TopicHandler {
	return &TopicHandler{topics: topics, defaultThreshold: defaultThreshold}
}

// TopicListResponse is the body of GET /api/v1/models/:model_id/topics.
type TopicListResponse struct {
	Topics domain.Topics `json:"topics"`
}

// TextTopicsResponse is the body of GET /api/v1/models/:model_id/topics?text=.
type TextTopicsResponse struct {
	Topics domain.TopicWeights `json:"topics"`
}

// UpdateTopicRequest is the body of PATCH /api/v1/models/:model_id/topics/:topic_id.
type UpdateTopicRequest struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ListTopics handles GET /api/v1/models/:model_id/topics.
// With ?text the topics of that text are inferred instead.
func (h *TopicHandler) ListTopics(c *gin.Context) {
	ctx := c.Request.Context()
	modelID := c.Param("model_id")

	if text, ok := c.GetQuery("text"); ok {
		threshold, ok := queryThreshold(c, h.defaultThreshold)
		if !ok {
			return
		}
		weights, err := h.topics.Query(ctx, modelID, text, threshold)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, TextTopicsResponse{Topics: weights})
		return
	}

	topics, err := h.topics.List(ctx, modelID)
	if err != nil {
		respondError(c, err)
		return
	}
	if topics == nil {
		topics = domain.Topics{}
	}
	c.JSON(http.StatusOK, TopicListResponse{Topics: topics})
}

// GetTopic handles GET /api/v1/models/:model_id/topics/:topic_id.
func (h *TopicHandler) GetTopic(c *gin.Context) {
	topicID, ok := topicParam(c)
	if !ok {
		return
	}
	topic, err := h.topics.Get(c.Request.Context(), c.Param("model_id"), topicID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

// UpdateTopic handles PATCH /api/v1/models/:model_id/topics/:topic_id.
func (h *TopicHandler) UpdateTopic(c *gin.Context) {
	topicID, ok := topicParam(c)
	if !ok {
		return
	}
	var req UpdateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	topic, err := h.topics.Update(c.Request.Context(), c.Param("model_id"), topicID, req.Label, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

func topicParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("topic_id"))
	if err != nil || id < 0 {
		badRequest(c, "topic_id must be a non-negative integer")
		return 0, false
	}
	return id, true
}
