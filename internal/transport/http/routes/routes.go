package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/infra/config"
	"github.com/arklim/srm-service/internal/transport/http/handlers"
	"github.com/arklim/srm-service/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Authorization    middleware.AuthorizationProvider
	Tags             handlers.TagManager
	BuyerAssignments handlers.BuyerAssignmentManager
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config        *config.AppConfig
	Logger        *zap.Logger
	RateLimiter   *middleware.RateLimiter
	TokenVerifier middleware.TokenVerifier
	HTTPMetrics   *middleware.HTTPMetrics
	Services      ServiceSet
	Database      DatabaseChecker
	Cache         CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(deps.HTTPMetrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.TokenVerifier == nil || deps.Services.Authorization == nil {
		return r
	}

	authz := deps.Services.Authorization
	api := r.Group("/api/v1")
	api.Use(middleware.RequireAuth(deps.TokenVerifier))

	sessionHandler := handlers.NewSessionHandler(authz)
	api.GET("/auth/session", sessionHandler.Session)

	tagBatchLimit := batchLimit(deps, "tag_batch", "tagId")
	buyerBatchLimit := batchLimit(deps, "buyer_batch", "buyerId")

	if deps.Services.Tags != nil {
		tagHandler := handlers.NewTagHandler(deps.Services.Tags)
		manageTags := middleware.RequirePermission(authz, domain.PermissionAdminSupplierTags)

		tags := api.Group("/suppliers/tags")
		tags.GET("", tagHandler.ListTags)
		tags.POST("", manageTags, tagHandler.CreateTag)
		tags.PUT("/:tagId", manageTags, tagHandler.UpdateTag)
		tags.DELETE("/:tagId", manageTags, tagHandler.DeleteTag)
		tags.GET("/:tagId/suppliers", tagHandler.ListSuppliers)
		tags.POST("/:tagId/batch-assign", withLimit(tagBatchLimit, manageTags, tagHandler.BatchAssign)...)
		tags.POST("/:tagId/batch-remove", withLimit(tagBatchLimit, manageTags, tagHandler.BatchRemove)...)

		api.PUT("/suppliers/:supplierId/tags", manageTags, tagHandler.ReplaceSupplierTags)
	}

	if deps.Services.BuyerAssignments != nil {
		assignmentHandler := handlers.NewBuyerAssignmentHandler(deps.Services.BuyerAssignments, authz)
		manageAssignments := middleware.RequirePermission(authz, domain.PermissionAdminBuyerAssignmentsManage)

		assignments := api.Group("/buyer-assignments")
		assignments.POST("/by-tag", withLimit(buyerBatchLimit, manageAssignments, assignmentHandler.AssignByTag)...)
		assignments.GET("/suppliers", assignmentHandler.ListAssignedSuppliers)
		assignments.GET("/buyers", manageAssignments, assignmentHandler.ListBuyers)
		assignments.POST("/buyers/:buyerId/batch-assign", withLimit(buyerBatchLimit, manageAssignments, assignmentHandler.BatchAssign)...)
		assignments.POST("/buyers/:buyerId/batch-unassign", withLimit(buyerBatchLimit, manageAssignments, assignmentHandler.BatchUnassign)...)
		assignments.DELETE("/:id", manageAssignments, assignmentHandler.RemoveAssignment)

		api.GET("/suppliers/:supplierId/buyers", manageAssignments, assignmentHandler.ListSupplierBuyers)
	}

	return r
}

func withLimit(limit gin.HandlerFunc, chain ...gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return chain
	}
	return append([]gin.HandlerFunc{limit}, chain...)
}

// batchLimit builds the per-actor budget for a family of batch routes, split by scopeParam
// when the route carries it. by-tag has no buyerId in its path and shares one budget per actor.
func batchLimit(deps Dependencies, name, scopeParam string) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || deps.Config.RateLimit.BatchMaxRequests <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.Limit(middleware.BatchLimit{
		Name:       name,
		Limit:      deps.Config.RateLimit.BatchMaxRequests,
		Window:     window,
		ScopeParam: scopeParam,
	})
}
