package routes

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"grievance-management-api/controllers"
	"grievance-management-api/middleware"
	"grievance-management-api/models"
	"grievance-management-api/monitor"
	"grievance-management-api/ratelimit"
)

// Options carries everything the router needs. Limiter and Readiness may be
// nil to leave rate limiting and the readiness probe out.
type Options struct {
	Auth          *controllers.AuthController
	Grievances    *controllers.GrievanceController
	Users         *controllers.UserController
	Categories    *controllers.CategoryController
	Notifications *controllers.NotificationController
	Dashboard     *controllers.DashboardController

	Sessions       middleware.SessionResolver
	Readiness      monitor.Pinger
	Limiter        ratelimit.Limiter
	AllowedOrigins []string
	UploadDir      string
	LogPath        string
	Version        string
}

var bindingOnce sync.Once

// useJSONFieldNames makes gin binding errors report json field names.
func useJSONFieldNames() {
	bindingOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(field reflect.StructField) string {
				name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
				if name == "" || name == "-" {
					return field.Name
				}
				return name
			})
		}
	})
}

// NewRouter builds the engine with the global middleware chain and all routes.
func NewRouter(opts Options) *gin.Engine {
	useJSONFieldNames()

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
		middleware.CORS(opts.AllowedOrigins),
	)

	monitor.RegisterHealth(router, opts.Version)
	if opts.Readiness != nil {
		monitor.RegisterReadiness(router, opts.Readiness)
	}
	monitor.RegisterMetrics(router)
	if opts.UploadDir != "" {
		router.Static("/uploads", opts.UploadDir)
	}

	SetupRoutes(router, opts)
	router.NoRoute(middleware.NotFound)
	return router
}

func SetupRoutes(router *gin.Engine, opts Options) {
	api := router.Group("/api")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimit(opts.Limiter))
	}

	adminOnly := middleware.RequireRole(models.RoleAdmin)
	staffOrAdmin := middleware.RequireRole(models.RoleAdmin, models.RoleStaff)

	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/register", middleware.OptionalAuth(opts.Sessions), opts.Auth.Register)
		auth.POST("/login", opts.Auth.Login)
	}

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(opts.Sessions))
	{
		session := protected.Group("/auth")
		{
			session.GET("/profile", opts.Auth.Profile)
			session.POST("/logout", opts.Auth.Logout)
			session.POST("/refresh", opts.Auth.Refresh)
		}

		grievances := protected.Group("/grievances")
		{
			grievances.GET("", opts.Grievances.List)
			grievances.POST("", opts.Grievances.Create)
			grievances.GET("/:id", opts.Grievances.Get)
			grievances.PUT("/:id", opts.Grievances.Update)
			grievances.PATCH("/:id/status", staffOrAdmin, opts.Grievances.ChangeStatus)
			grievances.DELETE("/:id", adminOnly, opts.Grievances.Delete)
			grievances.GET("/:id/comments", opts.Grievances.ListComments)
			grievances.POST("/:id/comments", opts.Grievances.AddComment)
			grievances.POST("/:id/attachments", opts.Grievances.AddAttachments)
		}

		categories := protected.Group("/categories")
		{
			categories.GET("", opts.Categories.List)
			categories.POST("", adminOnly, opts.Categories.Create)
			categories.PUT("/:id", adminOnly, opts.Categories.Update)
			categories.DELETE("/:id", adminOnly, opts.Categories.Delete)
		}

		users := protected.Group("/users")
		{
			users.GET("", adminOnly, opts.Users.List)
			users.GET("/:id", opts.Users.Get)
			users.PUT("/:id", opts.Users.Update)
			users.PUT("/:id/password", opts.Users.ChangePassword)
			users.PUT("/:id/toggle-status", adminOnly, opts.Users.ToggleStatus)
			users.DELETE("/:id", adminOnly, opts.Users.Delete)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", opts.Notifications.GetUserNotifications)
			notifications.PATCH("/read-all", opts.Notifications.MarkAllAsRead)
			notifications.PATCH("/:id/read", opts.Notifications.MarkAsRead)
		}

		dashboard := protected.Group("/dashboard")
		{
			dashboard.GET("/stats", opts.Dashboard.Stats)
			dashboard.GET("/recent-grievances", opts.Dashboard.RecentGrievances)
			dashboard.GET("/monthly-stats", adminOnly, opts.Dashboard.MonthlyStats)
			dashboard.GET("/performance", adminOnly, opts.Dashboard.Performance)
		}

		if opts.LogPath != "" {
			admin := protected.Group("/admin", adminOnly)
			monitor.RegisterLogsRoute(admin, opts.LogPath, monitor.DefaultLogTailBytes)
		}
	}
}
