package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/topicmodel/internal/api/handler"
	"github.com/timmy/topicmodel/internal/api/middleware"
	"github.com/timmy/topicmodel/internal/logger"
	"github.com/timmy/topicmodel/internal/service"
)

// Services bundles the services exposed over HTTP.
type Services struct {
	Models     *service.ModelService
	Topics     *service.TopicService
	Documents  *service.DocumentService
	Similarity *service.Similarity
}

// RouterConfig holds transport settings.
type RouterConfig struct {
	Mode             string
	CORS             middleware.CORSConfig
	DefaultThreshold float64
	// DB is pinged by the health check when set.
	DB handler.Pinger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg RouterConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.DB)
	modelHandler := handler.NewModelHandler(svc.Models)
	topicHandler := handler.NewTopicHandler(svc.Topics, cfg.DefaultThreshold)
	documentHandler := handler.NewDocumentHandler(svc.Documents, svc.Similarity, cfg.DefaultThreshold)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/models", modelHandler.ListModels)
		v1.PUT("/models", modelHandler.CreateModel)

		m := v1.Group("/models/:model_id")
		{
			m.GET("", modelHandler.GetModel)
			m.PATCH("", modelHandler.UpdateModel)
			m.DELETE("", modelHandler.DeleteModel)

			m.GET("/topics", topicHandler.ListTopics)
			m.GET("/topics/:topic_id", topicHandler.GetTopic)
			m.PATCH("/topics/:topic_id", topicHandler.UpdateTopic)

			m.GET("/documents", documentHandler.ListDocuments)
			m.PUT("/documents", documentHandler.AssignDocuments)
			m.GET("/documents/:document_id", documentHandler.GetDocument)
			m.GET("/documents/:document_id/neighbors", documentHandler.DocumentNeighbors)

			m.GET("/neighbors", documentHandler.TextNeighbors)
		}
	}

	return r
}
