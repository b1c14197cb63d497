// Package routing assembles the gin engine: common middleware first, then
// every route registered explicitly against its handler and guards.
package routing

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kithnet/server-core/internal/config"
	"github.com/kithnet/server-core/internal/handlers"
	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

const (
	apiName    = "Kithnet Server Core"
	apiVersion = "1.0.0"
)

// Managers bundles everything the router wires into handlers.
type Managers struct {
	Database   managers.DatabaseMgr
	Session    managers.SessionMgr
	Reset      managers.ResetMgr
	Connection managers.ConnectionMgr
	Role       managers.RoleMgr
	Mail       managers.MailMgr
	Moderation managers.ModerationMgr
}

// InitRouter builds the fully wired engine.
func InitRouter(mgrs *Managers, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(middleware.InjectTrace())
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.SanitizePath())
	router.Use(middleware.LogRequest())

	authHandler := handlers.NewAuthHandler(mgrs.Database, mgrs.Session, mgrs.Reset, mgrs.Mail, cfg.IsProduction())
	userHandler := handlers.NewUserHandler(mgrs.Database, mgrs.Moderation, cfg.DisplayNameCooldown, cfg.ProfilePictureBaseURL)
	connectionHandler := handlers.NewConnectionHandler(mgrs.Database, mgrs.Connection)
	postHandler := handlers.NewPostHandler(mgrs.Database, mgrs.Role)
	notificationHandler := handlers.NewNotificationHandler(mgrs.Database)

	requireAuth := middleware.RequireAuth(mgrs.Session)
	optionalAuth := middleware.OptionalAuth(mgrs.Session)
	requireAdministrator := middleware.RequireRole(mgrs.Role, mgrs.Database, managers.AdministratorRole)

	router.GET("/", metadataRoute)
	router.GET("/health", healthRoute(mgrs.Database))

	api := router.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", middleware.ValidateStruct(func() interface{} { return &schemas.RegistrationRequest{} }), authHandler.Register)
	auth.POST("/login", middleware.DecodeLoose(mgrs.Session), middleware.ValidateStruct(func() interface{} { return &schemas.LoginRequest{} }), authHandler.Login)
	auth.POST("/logout", requireAuth, middleware.ValidateStruct(func() interface{} { return &schemas.LogoutRequest{} }), authHandler.Logout)
	auth.POST("/reset-password-request", middleware.ValidateStruct(func() interface{} { return &schemas.ResetPasswordRequestRequest{} }), authHandler.RequestPasswordReset)
	auth.POST("/reset-password", middleware.ValidateStruct(func() interface{} { return &schemas.ResetPasswordRequest{} }), authHandler.ResetPassword)

	users := api.Group("/users")
	users.POST("/setDisplayName", requireAuth, middleware.ValidateStruct(func() interface{} { return &schemas.SetDisplayNameRequest{} }), userHandler.SetDisplayName)
	users.POST("/profilePicture", requireAuth, userHandler.UploadProfilePicture)
	users.GET("/:"+utils.ProfileNameKey, optionalAuth, userHandler.GetProfile)
	users.GET("/:"+utils.ProfileNameKey+"/displayNames", optionalAuth, userHandler.ListDisplayNames)
	users.POST("/:"+utils.ProfileNameKey+"/displayNames/verify", requireAuth, requireAdministrator, userHandler.VerifyDisplayName)
	users.GET("/:"+utils.ProfileNameKey+"/posts", optionalAuth, postHandler.GetUserPosts)

	connections := api.Group("/connections", requireAuth)
	connections.POST("", middleware.ValidateStruct(func() interface{} { return &schemas.ConnectionUpdateRequest{} }), connectionHandler.UpsertConnection)
	connections.DELETE("/:"+utils.ProfileNameKey, connectionHandler.RemoveConnection)
	connections.GET("/outgoing", connectionHandler.ListOutgoing)
	connections.GET("/incoming", connectionHandler.ListIncoming)
	connections.GET("/types", connectionHandler.ListConnectionTypes)

	posts := api.Group("/posts")
	posts.POST("", requireAuth, middleware.ValidateStruct(func() interface{} { return &schemas.CreatePostRequest{} }), postHandler.CreatePost)
	posts.DELETE("/:"+utils.PostIdKey, requireAuth, postHandler.DeletePost)
	posts.POST("/:"+utils.PostIdKey+"/comments", requireAuth, middleware.ValidateStruct(func() interface{} { return &schemas.CreateCommentRequest{} }), postHandler.CreateComment)
	posts.GET("/:"+utils.PostIdKey+"/comments", optionalAuth, postHandler.GetComments)

	api.GET("/feed", optionalAuth, postHandler.GetFeed)

	notifications := api.Group("/notifications", requireAuth)
	notifications.GET("", notificationHandler.ListNotifications)
	notifications.PATCH("/:"+utils.NotificationIdKey, notificationHandler.MarkNotificationRead)

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"https://kithnet.app", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func metadataRoute(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, &schemas.MetadataDTO{
		ApiVersion: apiVersion,
		ApiName:    apiName,
	})
}

// healthRoute answers 200 while the database is reachable.
func healthRoute(databaseMgr managers.DatabaseMgr) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := databaseMgr.GetPool().Ping(ctx); err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusServiceUnavailable, err)
			return
		}
		ctx.JSON(http.StatusOK, &schemas.Response{Success: true, Message: "healthy"})
	}
}
