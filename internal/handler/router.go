package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/middleware"
	"github.com/thesishub/thesishub-api/internal/models"
	"github.com/thesishub/thesishub-api/internal/repository"
	"github.com/thesishub/thesishub-api/internal/service"
)

// Handlers bundles every endpoint group for route registration.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Batches       *BatchHandler
	Groups        *GroupHandler
	Grading       *GradingHandler
	Documents     *DocumentHandler
	Notifications *NotificationHandler
	Journal       *JournalHandler
	Exports       *ExportHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts all API routes on the engine. Auth, RBAC and audit
// policies live here; handlers stay policy-free.
func RegisterRoutes(r *gin.Engine, h Handlers, authService *service.AuthService, metricsService *service.MetricsService, users *repository.UserRepository) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group("/api/v1")
	api.Use(middleware.Metrics(metricsService))

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)

	// Token-authenticated download; the signed token carries authorization.
	api.GET("/downloads", h.Documents.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)
	authed.GET("/auth/me", h.Auth.Me)

	authed.GET("/research-fields", h.Users.ResearchFields)

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))

	admin.GET("/users", h.Users.List)
	admin.POST("/users", middleware.Audit(users, models.AuditActionUserCreate, "users"), h.Users.Create)
	admin.PUT("/users/:id", middleware.Audit(users, models.AuditActionUserUpdate, "users"), h.Users.Update)
	admin.PUT("/users/:id/teacher-profile", h.Users.UpdateTeacherProfile)

	admin.POST("/batches", h.Batches.Create)
	admin.PUT("/batches/:id", h.Batches.Update)
	admin.DELETE("/batches/:id", h.Batches.Delete)

	admin.PATCH("/groups/:id/approval", middleware.Audit(users, models.AuditActionGroupApprove, "groups"), h.Groups.SetApproval)
	admin.PUT("/groups/:id/roles", middleware.Audit(users, models.AuditActionRoleAssign, "groups"), h.Groups.AssignRole)
	admin.GET("/batches/:id/grade-sheet", h.Exports.GradeSheet)

	authed.GET("/users/:id", h.Users.Get)
	authed.GET("/batches", h.Batches.List)
	authed.GET("/batches/:id", h.Batches.Get)

	students := authed.Group("")
	students.Use(middleware.RequireRoles(models.RoleStudent))

	students.POST("/groups", h.Groups.Create)
	students.POST("/groups/join", h.Groups.Join)
	students.POST("/groups/leave", h.Groups.Leave)
	students.POST("/groups/:id/documents", h.Documents.Upload)
	students.POST("/groups/:id/logbooks", h.Journal.PostLogbook)

	authed.GET("/groups", h.Groups.List)
	authed.GET("/groups/:id", h.Groups.Get)
	authed.GET("/groups/:id/overview", h.Groups.Overview)
	authed.GET("/groups/teacher-choices", h.Groups.TeacherChoices)
	authed.GET("/groups/:id/documents", h.Documents.List)
	authed.GET("/groups/:id/comments", h.Journal.ListComments)
	authed.POST("/groups/:id/comments", h.Journal.PostComment)
	authed.GET("/groups/:id/logbooks", h.Journal.ListLogbooks)
	authed.GET("/groups/:id/marks", h.Grading.GroupMarks)
	authed.GET("/groups/:id/results", h.Grading.GroupResults)
	authed.GET("/groups/:id/results/me", h.Grading.OwnResult)

	teachers := authed.Group("")
	teachers.Use(middleware.RequireRoles(models.RoleTeacher))

	teachers.PATCH("/groups/:id/progress", h.Groups.UpdateProgress)
	teachers.POST("/groups/:id/marks", h.Grading.SubmitMark)
	teachers.GET("/groups/:id/marks/own", h.Grading.OwnMarks)
	teachers.PATCH("/documents/:id/review", h.Documents.Review)
	teachers.PATCH("/logbooks/:id/approval", h.Journal.ApproveLogbook)

	authed.POST("/documents/:id/download-url", h.Documents.DownloadGrant)
	authed.DELETE("/documents/:id", h.Documents.Delete)

	authed.GET("/notifications", h.Notifications.List)
	authed.GET("/notifications/unread-count", h.Notifications.UnreadCount)
	authed.POST("/notifications/viewed", h.Notifications.MarkViewed)
}
