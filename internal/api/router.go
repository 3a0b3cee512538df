// Package api assembles the HTTP router for the Votely application.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/api/handlers"
	"github.com/JavaBool/votely/internal/api/middleware"
	"github.com/JavaBool/votely/internal/auth"
	"github.com/JavaBool/votely/internal/config"
	"github.com/JavaBool/votely/internal/service"
)

// Services bundles the service layer the router depends on.
type Services struct {
	Admins    *service.AdminService
	Elections *service.ElectionService
	Electors  *service.ElectorService
	Voting    *service.VotingService
}

// NewRouter builds the gin engine with all routes and middleware configured.
func NewRouter(cfg *config.Config, svcs Services, tokens *auth.JWTManager, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	if cfg.Security.CORSEnabled {
		corsCfg := cors.DefaultConfig()
		if len(cfg.Security.CORSOrigins) > 0 {
			corsCfg.AllowOrigins = cfg.Security.CORSOrigins
		} else {
			corsCfg.AllowAllOrigins = true
		}
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		router.Use(cors.New(corsCfg))
	}

	authHandler := handlers.NewAuthHandler(svcs.Admins, logger)
	adminHandler := handlers.NewAdminHandler(svcs.Admins, logger)
	electionHandler := handlers.NewElectionHandler(svcs.Elections, svcs.Admins, logger)
	electorHandler := handlers.NewElectorHandler(svcs.Electors, svcs.Voting, svcs.Admins, logger)
	votingHandler := handlers.NewVotingHandler(svcs.Voting, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public election routes
	v1.GET("/elections", electionHandler.ListPublic)
	v1.GET("/elections/:id", electionHandler.GetPublic)
	v1.GET("/elections/:id/candidates", electionHandler.ListPublicCandidates)
	v1.GET("/elections/:id/results", electionHandler.PublicResults)
	v1.POST("/elections/:id/nominations", electionHandler.Nominate)
	v1.POST("/elections/:id/access-requests", electorHandler.RequestAccess)

	// Voter authentication and ballot casting
	v1.POST("/elections/:id/vote/phone", votingHandler.AuthenticatePhone)
	v1.POST("/elections/:id/vote/request-otp", votingHandler.RequestEmailOTP)
	v1.POST("/elections/:id/vote/verify-otp", votingHandler.VerifyEmailOTP)
	v1.POST("/elections/:id/vote/secret-code", votingHandler.AuthenticateSecretCode)
	v1.POST("/ballots", votingHandler.CastBallot)

	// Admin authentication
	v1.POST("/admin/login", authHandler.Login)
	v1.POST("/admin/login/verify", authHandler.VerifyLogin)
	v1.POST("/admin/forgot-password", authHandler.ForgotPassword)
	v1.POST("/admin/reset-password", authHandler.ResetPassword)

	// Password change is reachable even while a change is being forced
	session := v1.Group("/admin", middleware.AuthRequired(tokens))
	session.POST("/change-password", authHandler.ChangePassword)

	admin := session.Group("", middleware.PasswordChangeEnforced())

	elections := admin.Group("/elections", middleware.RequireManageElections())
	elections.GET("", electionHandler.List)
	elections.POST("", electionHandler.Create)
	elections.GET("/:id", electionHandler.Get)
	elections.PUT("/:id", electionHandler.Update)
	elections.POST("/:id/publish", electionHandler.Publish)
	elections.POST("/:id/end-now", electionHandler.EndNow)
	elections.POST("/:id/start-nominations", electionHandler.StartNominationsNow)
	elections.POST("/:id/end-nominations", electionHandler.EndNominationsNow)
	elections.POST("/:id/start-voting", electionHandler.StartVotingNow)
	elections.POST("/:id/delete/request", electionHandler.RequestDelete)
	elections.POST("/:id/delete/confirm", electionHandler.ConfirmDelete)
	elections.POST("/:id/results/release/request", electionHandler.RequestRelease)
	elections.POST("/:id/results/release/confirm", electionHandler.ConfirmRelease)
	elections.GET("/:id/results", electionHandler.Results)
	elections.GET("/:id/candidates", electionHandler.ListCandidates)

	candidates := admin.Group("/candidates", middleware.RequireManageElections())
	candidates.PUT("/:id/status", electionHandler.SetCandidateStatus)
	candidates.DELETE("/:id", electionHandler.DeleteCandidate)

	roll := admin.Group("/elections/:id/electors", middleware.RequireManageElectors())
	roll.GET("", electorHandler.List)
	roll.POST("", electorHandler.Add)
	roll.POST("/import", electorHandler.Import)
	roll.GET("/export", electorHandler.Export)
	roll.POST("/bulk-delete", electorHandler.BulkDelete)

	codes := admin.Group("/elections/:id/secret-codes", middleware.RequireManageElectors())
	codes.POST("/export/request", electorHandler.RequestExportCodes)
	codes.POST("/export/confirm", electorHandler.ConfirmExportCodes)
	codes.POST("/reset/request", electorHandler.RequestResetCodes)
	codes.POST("/reset/confirm", electorHandler.ConfirmResetCodes)

	electors := admin.Group("/electors", middleware.RequireManageElectors())
	electors.PUT("/:id", electorHandler.Update)
	electors.DELETE("/:id", electorHandler.Delete)
	electors.PUT("/:id/status", electorHandler.SetStatus)
	electors.GET("/:id/secret-code", electorHandler.GetSecretCode)
	electors.POST("/:id/secret-code/reset", electorHandler.ResetSecretCode)
	electors.POST("/:id/reset-vote/request", electorHandler.RequestResetVote)
	electors.POST("/:id/reset-vote/confirm", electorHandler.ConfirmResetVote)

	admins := admin.Group("/admins", middleware.RequireManageAdmins())
	admins.GET("", adminHandler.List)
	admins.POST("", adminHandler.Create)
	admins.PUT("/:id", adminHandler.Update)
	admins.DELETE("/:id", adminHandler.Delete)

	system := admin.Group("/system", middleware.RequireSuperAdmin())
	system.GET("/mailer-workers", adminHandler.GetMailerWorkers)
	system.PUT("/mailer-workers", adminHandler.ResizeMailerPool)
	system.POST("/cleanup-rejected-electors", electorHandler.CleanupRejected)

	return router
}
