package routes

import (
	"net/http"

	"github.com/templui/accountable/internal/app"
	"github.com/templui/accountable/internal/handler"
	"github.com/templui/accountable/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	system := handler.NewSystemHandler(app.DB, app.ServiceWorker)
	auth := handler.NewAuthHandler(app.AuthService, app.ProfileService, app.Cfg)
	account := handler.NewAccountHandler(app.AuthService, app.UserService, app.ProfileService)
	profile := handler.NewProfileHandler(app.ProfileService)
	dashboard := handler.NewDashboardHandler(app.GoalService, app.ProfileService, app.PartnershipService,
		app.NotificationService, app.SessionService)
	goal := handler.NewGoalHandler(app.GoalService)
	partnership := handler.NewPartnershipHandler(app.PartnershipService)
	message := handler.NewMessageHandler(app.MessageService)
	milestone := handler.NewMilestoneHandler(app.MilestoneService)
	session := handler.NewSessionHandler(app.SessionService)
	notification := handler.NewNotificationHandler(app.NotificationService, app.Cfg.VAPIDPublicKey)
	guide := handler.NewGuideHandler(app.GuideService)
	realtime := handler.NewRealtimeHandler(app.Bus, app.Cfg.AppURL)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", system.Healthz)
	mux.HandleFunc("GET /sw.js", system.ServiceWorker)
	mux.HandleFunc("GET /api/csrf", auth.CSRF)

	// Onboarding guide
	mux.HandleFunc("GET /api/guide", guide.List)
	mux.HandleFunc("GET /api/guide/{slug}", guide.Step)

	// Auth (rate limited)
	rateLimiter := middleware.RateLimitAuth()

	mux.HandleFunc("POST /auth/signup", rateLimiter(middleware.RequireGuest(auth.Signup)))
	mux.HandleFunc("POST /auth/login", rateLimiter(middleware.RequireGuest(auth.Login)))
	mux.HandleFunc("POST /auth/magic-link", rateLimiter(middleware.RequireGuest(auth.SendMagicLink)))
	mux.HandleFunc("POST /auth/logout", auth.Logout)

	// Links opened from emails
	mux.HandleFunc("GET /auth/magic-link/{token}", auth.VerifyMagicLink)
	mux.HandleFunc("GET /auth/verify-email/{token}", auth.VerifyEmail)

	// OAuth
	mux.HandleFunc("GET /auth/oauth/{provider}", rateLimiter(middleware.RequireGuest(auth.OAuthStart)))
	mux.HandleFunc("GET /auth/oauth/{provider}/callback", rateLimiter(auth.OAuthCallback))

	// Push relay, when this process also serves it
	if app.PushRelay != nil {
		mux.Handle("POST /notifications/send", app.PushRelay)
	}

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	mux.HandleFunc("GET /api/me", middleware.RequireAuth(auth.Me))
	mux.HandleFunc("GET /api/dashboard", middleware.RequireAuth(dashboard.Show))
	mux.HandleFunc("GET /api/realtime", middleware.RequireAuth(realtime.Stream))

	// Account
	mux.HandleFunc("POST /api/account/password", middleware.RequireAuth(account.ChangePassword))
	mux.HandleFunc("POST /api/account/avatar", middleware.RequireAuth(account.UploadAvatar))
	mux.HandleFunc("DELETE /api/account/avatar", middleware.RequireAuth(account.DeleteAvatar))
	mux.HandleFunc("DELETE /api/account", middleware.RequireAuth(account.DeleteAccount))

	// Profiles
	mux.HandleFunc("GET /api/profile", middleware.RequireAuth(profile.Mine))
	mux.HandleFunc("PATCH /api/profile", middleware.RequireAuth(profile.Update))
	mux.HandleFunc("GET /api/profiles/discover", middleware.RequireAuth(profile.Discover))
	mux.HandleFunc("GET /api/profiles/{userID}", middleware.RequireAuth(profile.Public))

	// Goals
	mux.HandleFunc("POST /api/goals", middleware.RequireAuth(goal.Create))
	mux.HandleFunc("GET /api/goals/today", middleware.RequireAuth(goal.Today))
	mux.HandleFunc("GET /api/goals/history", middleware.RequireAuth(goal.History))
	mux.HandleFunc("GET /api/goals/feed", middleware.RequireAuth(goal.Feed))
	mux.HandleFunc("GET /api/goals/{id}", middleware.RequireAuth(goal.Get))
	mux.HandleFunc("PATCH /api/goals/{id}", middleware.RequireAuth(goal.Update))
	mux.HandleFunc("DELETE /api/goals/{id}", middleware.RequireAuth(goal.Delete))
	mux.HandleFunc("POST /api/goals/{id}/check-in", middleware.RequireAuth(goal.CheckIn))

	// Partnerships
	requestLimiter := middleware.RateLimitRequests()

	mux.HandleFunc("GET /api/partnerships", middleware.RequireAuth(partnership.List))
	mux.HandleFunc("POST /api/partnerships", requestLimiter(middleware.RequireAuth(partnership.Create)))
	mux.HandleFunc("GET /api/partnerships/{id}", middleware.RequireAuth(partnership.Get))
	mux.HandleFunc("POST /api/partnerships/{id}/accept", middleware.RequireAuth(partnership.Accept))
	mux.HandleFunc("POST /api/partnerships/{id}/decline", middleware.RequireAuth(partnership.Decline))
	mux.HandleFunc("POST /api/partnerships/{id}/end", middleware.RequireAuth(partnership.End))

	// Messages
	mux.HandleFunc("GET /api/conversations", middleware.RequireAuth(message.Conversations))
	mux.HandleFunc("GET /api/partnerships/{id}/messages", middleware.RequireAuth(message.Thread))
	mux.HandleFunc("POST /api/partnerships/{id}/messages", middleware.RequireAuth(message.Send))
	mux.HandleFunc("POST /api/partnerships/{id}/messages/read", middleware.RequireAuth(message.MarkRead))

	// Milestones
	mux.HandleFunc("GET /api/partnerships/{id}/milestones", middleware.RequireAuth(milestone.List))
	mux.HandleFunc("POST /api/partnerships/{id}/milestones", middleware.RequireAuth(milestone.Create))
	mux.HandleFunc("POST /api/milestones/{milestoneID}/toggle", middleware.RequireAuth(milestone.Toggle))

	// Video sessions
	mux.HandleFunc("GET /api/sessions", middleware.RequireAuth(session.Upcoming))
	mux.HandleFunc("GET /api/partnerships/{id}/sessions", middleware.RequireAuth(session.List))
	mux.HandleFunc("POST /api/partnerships/{id}/sessions", middleware.RequireAuth(session.Schedule))
	mux.HandleFunc("POST /api/sessions/{sessionID}/complete", middleware.RequireAuth(session.Complete))

	// Notifications
	mux.HandleFunc("GET /api/notifications", middleware.RequireAuth(notification.List))
	mux.HandleFunc("GET /api/notifications/counts", middleware.RequireAuth(notification.Counts))
	mux.HandleFunc("POST /api/notifications/read", middleware.RequireAuth(notification.MarkAllRead))
	mux.HandleFunc("POST /api/notifications/{id}/read", middleware.RequireAuth(notification.MarkRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", middleware.RequireAuth(notification.Dismiss))
	mux.HandleFunc("GET /api/push/config", middleware.RequireAuth(notification.PushConfig))
	mux.HandleFunc("POST /api/push/subscription", middleware.RequireAuth(notification.Subscribe))
	mux.HandleFunc("DELETE /api/push/subscription", middleware.RequireAuth(notification.Unsubscribe))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", system.NotFound)

	// Global middleware, outermost first
	return middleware.Chain(
		mux,
		middleware.Config(app.Cfg), // needed by SecurityHeaders and the CSRF cookie
		middleware.SecurityHeaders,
		middleware.AuthMiddleware(app.AuthService, app.UserService),
		middleware.RequestLogging, // after auth so the user id is logged
		middleware.CSRFProtection, // after auth so Bearer requests are recognised
	)
}
