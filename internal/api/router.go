package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"event-checkin-backend/config"
	"event-checkin-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.RequestID(), mw.Recovery(cfg.Debug), mw.RequestLogger(cfg.ReaderHeader))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.ReaderHeader)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/health", handler.Health)
	if handler.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handler.gatherer, promhttp.HandlerOpts{})))
	}

	setup := r.Group("/setup")
	{
		setup.POST("/add_student", handler.AddStudent)
		setup.POST("/add_students", handler.AddStudents)
	}

	// Readers retry aggressively; they are limited per device.
	r.POST("/scan", rateLimiter, handler.Scan)
	r.POST("/gate/issue_card", rateLimiter, handler.IssueCard)

	staff := r.Group("/staff")
	staff.Use(rateLimiter)
	{
		staff.POST("/link_card", handler.LinkCard)
		staff.POST("/check_status", handler.CheckStatus)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/add_student", handler.AddStudent)
		admin.POST("/issue_meal", handler.IssueMeal)
		admin.POST("/adjust_credits", handler.AdjustCredits)
		admin.GET("/attendees/:registrationId", handler.GetAttendee)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/stats", caching, handler.GetStats)
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
