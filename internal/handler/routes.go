package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conces/conces-api/internal/middleware"
	"github.com/conces/conces-api/internal/models"
	"github.com/conces/conces-api/internal/repository"
	"github.com/conces/conces-api/internal/service"
)

// Handlers bundles every HTTP handler of the API.
type Handlers struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Alumni  *AlumniHandler
	Branch  *BranchHandler
	Feed    *FeedHandler
	Exports *ExportHandler
	Uploads *UploadHandler
	Metrics *MetricsHandler
}

// RegisterRoutes mounts all API routes under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService, auditRepo *repository.UserRepository) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	// Public auth endpoints.
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.PUT("/auth/change-password", h.Auth.ChangePassword)
	authed.GET("/auth/me", h.Auth.Me)

	adminOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	adminOrBranch := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBranchAdmin)

	adminUsers := authed.Group("/admin/users")
	adminUsers.Use(adminOnly)
	{
		adminUsers.GET("", h.Users.List)
		adminUsers.POST("", h.Users.Create)
		adminUsers.GET("/:id", h.Users.Get)
		adminUsers.PUT("/:id", h.Users.Update)
		adminUsers.DELETE("/:id", h.Users.Delete)
	}

	users := authed.Group("/users")
	{
		users.GET("/profile", h.Auth.Me)
		users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), h.Users.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), h.Users.Update)
	}

	alumni := authed.Group("/alumni")
	{
		alumni.GET("", h.Alumni.List)
		alumni.GET("/export", adminOrBranch, h.Alumni.Export)
		alumni.POST("", adminOrBranch, h.Alumni.Create)
		alumni.POST("/bulk", adminOrBranch, h.Alumni.Bulk)
		alumni.GET("/:id", h.Alumni.Get)
		alumni.PUT("/:id", adminOrBranch, h.Alumni.Update)
		alumni.DELETE("/:id", adminOrBranch, h.Alumni.Delete)
	}

	branches := authed.Group("/branches")
	{
		branches.GET("", h.Branch.List)
		branches.GET("/:id", h.Branch.Get)
		branches.POST("", adminOnly, h.Branch.Create)
		branches.PUT("/:id", adminOnly, h.Branch.Update)
		branches.DELETE("/:id", adminOnly, h.Branch.Delete)
	}

	// Reading the feed is public; posting and deleting require a session.
	feed := api.Group("/feed")
	feed.Use(middleware.OptionalJWT(auth))
	{
		feed.GET("", h.Feed.List)
		feed.GET("/:id", h.Feed.Get)
	}
	authedFeed := authed.Group("/feed")
	{
		authedFeed.POST("", h.Feed.Create)
		authedFeed.DELETE("/:id", h.Feed.Delete)
	}

	exports := authed.Group("/exports")
	{
		exports.POST("", adminOrBranch, h.Exports.Enqueue)
		exports.GET("", adminOrBranch, h.Exports.List)
		exports.GET("/:id", adminOrBranch, h.Exports.Status)
	}
	// Download is token-authenticated, not session-authenticated.
	api.GET("/export/:token", middleware.Audit(auditRepo, "EXPORT_DOWNLOAD", "export"), h.Exports.Download)

	authed.POST("/uploads", middleware.Audit(auditRepo, "UPLOAD", "file"), h.Uploads.Upload)

	authed.GET("/metrics/snapshot", adminOnly, h.Metrics.Snapshot)
}
