package admin

import (
	"net/http"
	"time"

	"github.com/edirooss/slot-server/internal/http/handler"
	mw "github.com/edirooss/slot-server/internal/http/middleware"
	"github.com/edirooss/slot-server/internal/server"
	"github.com/edirooss/slot-server/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxConcurrentRequests caps in-flight admin requests.
const maxConcurrentRequests = 16

// NewRouter builds the read-only admin API over srv.
func NewRouter(log *zap.Logger, srv *server.Server, isDev bool) *gin.Engine {
	log = log.Named("admin")
	r := gin.New()

	// Apply Gin middlewares
	{
		r.Use(gin.Recovery()) // Recovery first (outermost)
		r.Use(mw.RequestID())

		if isDev { // Allow a local dashboard to poll the API
			r.Use(cors.New(cors.Config{
				AllowOrigins:  []string{"http://localhost:5173", "http://127.0.0.1:5173"},
				AllowMethods:  []string{"GET", "OPTIONS"},
				AllowHeaders:  []string{"X-Request-ID"},
				ExposeHeaders: []string{"X-Request-ID", "X-Total-Count", "X-Cache", "X-Stats-Generated-At"},
				MaxAge:        12 * time.Hour,
			}))
		} else {
			r.Use(secure.New(secure.Config{
				FrameDeny:          true,
				ContentTypeNosniff: true,
				BrowserXssFilter:   true,
				ReferrerPolicy:     "no-referrer",
			}))
		}

		r.Use(mw.AccessLog(log))
		r.Use(mw.LimitConcurrentRequests(maxConcurrentRequests))
	}

	// Register route handlers
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

		statssvc := service.NewStatsService(log, srv, service.StatsOptions{})
		sesshndlr := handler.NewSessionsHandler(log, srv.Sessions(), srv.Messages(), statssvc)

		requireValidSlot := mw.RequireValidSlot(srv.Stats().Capacity)
		r.GET("/api/sessions", sesshndlr.GetSessionList)
		r.GET("/api/sessions/:slot/messages", requireValidSlot, sesshndlr.GetSessionMessages)
		r.GET("/api/stats", sesshndlr.GetStats)
	}

	return r
}

// NewHTTPServer wraps handler with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      15 * time.Second, // avoid forever-hangs on writes
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}
}
