package api

import (
	"github.com/gin-gonic/gin"
	"github.com/ryanmac/youtube-extraction-service/internal/api/handler"
	"github.com/ryanmac/youtube-extraction-service/internal/api/middleware"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Jobs      handler.JobService
	Retriever handler.Retriever
	Channels  handler.ChannelService
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(cfg *config.Config, svc Services, log *logger.Logger) *gin.Engine {
	switch cfg.Server.Mode {
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
	r.Use(middleware.CORS(cfg.Server.CORS))

	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(svc.Jobs)
	queryHandler := handler.NewQueryHandler(svc.Retriever)
	channelHandler := handler.NewChannelHandler(svc.Channels)

	r.GET("/", healthHandler.Root)
	r.GET("/health", healthHandler.Health)

	authed := r.Group("/", middleware.APIKeyAuth(cfg.Auth.APIKey))
	{
		authed.POST("/process_channel", jobHandler.ProcessChannel)
		authed.GET("/job_status/:job_id", jobHandler.JobStatus)

		authed.GET("/relevant_chunks", queryHandler.RelevantChunks)
		authed.GET("/recent_chunks", queryHandler.RecentChunks)
		authed.GET("/stats", queryHandler.Stats)

		authed.GET("/channel_info", channelHandler.ChannelInfo)
		authed.POST("/refresh_channel_metadata", channelHandler.RefreshMetadata)
	}

	return r
}
