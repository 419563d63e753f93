package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/auth"
	"github.com/your-org/attendance/internal/storage"
)

type RouterConfig struct {
	APIKey  string
	Store   storage.Store
	Control handlers.Controller
	Hub     *ws.Hub
	// Checks are reported by /readyz, keyed by dependency name.
	Checks map[string]handlers.Pinger
	// Location is the engine timezone used for day keys and times.
	Location *time.Location
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Reader
	readerH := handlers.NewReaderHandler(cfg.Control)
	v1.GET("/reader/status", readerH.Status)
	v1.POST("/reader/start", readerH.Start)
	v1.POST("/reader/stop", readerH.Stop)
	v1.POST("/reader/scan", readerH.Scan)

	// Attendance
	attH := handlers.NewAttendanceHandler(cfg.Store, cfg.Control, cfg.Location)
	v1.GET("/attendance/today", attH.Today)
	v1.POST("/attendance/clear_today", attH.ClearToday)

	// Scan logs
	logH := handlers.NewLogHandler(cfg.Store)
	v1.GET("/logs", logH.List)

	// Policy
	cfgH := handlers.NewConfigHandler(cfg.Store, cfg.Control)
	v1.GET("/config", cfgH.Get)
	v1.PUT("/config", cfgH.Update)

	return r
}
