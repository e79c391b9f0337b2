package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/config"
	"github.com/templui/accountable/internal/db"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/service"
	"github.com/templui/accountable/internal/storage"
)

type App struct {
	Cfg           *config.Config
	DB            *sqlx.DB
	Clock         clock.Clock
	Bus           *events.Bus
	ServiceWorker []byte

	// PushRelay is set when this process signs its own pushes and has a
	// relay secret, so other instances may post to /notifications/send.
	PushRelay  *push.Relay
	Dispatcher push.Dispatcher

	AuthService         *service.AuthService
	UserService         *service.UserService
	ProfileService      *service.ProfileService
	EmailService        *service.EmailService
	FileService         *service.FileService
	SlotService         *service.SlotService
	StreakService       *service.StreakService
	GoalService         *service.GoalService
	PartnershipService  *service.PartnershipService
	MessageService      *service.MessageService
	MilestoneService    *service.MilestoneService
	SessionService      *service.SessionService
	NotificationService *service.NotificationService
	GuideService        *service.GuideService
	Scheduler           *service.Scheduler
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	clk := clock.NewSystem(cfg.Location())
	bus := events.NewBus(64)

	// Repositories
	userRepository := repository.NewUserRepository(database)
	profileRepository := repository.NewProfileRepository(database)
	tokenRepository := repository.NewTokenRepository(database)
	fileRepository := repository.NewFileRepository(database)
	goalRepository := repository.NewGoalRepository(database)
	partnershipRepository := repository.NewPartnershipRepository(database)
	messageRepository := repository.NewMessageRepository(database)
	milestoneRepository := repository.NewMilestoneRepository(database)
	sessionRepository := repository.NewVideoSessionRepository(database)
	notificationRepository := repository.NewNotificationRepository(database)
	pushRepository := repository.NewPushSubscriptionRepository(database)

	// Storage
	fileStorage, err := storage.New(ctx, cfg)
	if errors.Is(err, storage.ErrDisabled) {
		slog.Warn("avatar uploads disabled", "reason", err)
	} else if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Push
	relay, dispatcher, err := newPushDispatcher(cfg, pushRepository)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize push: %w", err)
	}

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	fileService := service.NewFileService(fileRepository, fileStorage, clk)
	profileService := service.NewProfileService(profileRepository, userRepository, fileService, clk)
	slotService := service.NewSlotService(goalRepository, clk, bus, cfg.SlotReservationTTL)
	notificationService := service.NewNotificationService(
		notificationRepository,
		messageRepository,
		partnershipRepository,
		pushRepository,
		userRepository,
		emailService,
		dispatcher,
		clk,
		bus,
	)
	partnershipService := service.NewPartnershipService(
		partnershipRepository,
		goalRepository,
		profileRepository,
		slotService,
		notificationService,
		clk,
		bus,
	)
	streakService := service.NewStreakService(profileRepository, clk, bus)
	goalService := service.NewGoalService(goalRepository, streakService, fileService, clk, bus, cfg.FeedLimit)
	messageService := service.NewMessageService(messageRepository, profileRepository, partnershipService,
		notificationService, fileService, clk, bus)
	milestoneService := service.NewMilestoneService(milestoneRepository, partnershipService, notificationService, clk, bus)
	sessionService := service.NewSessionService(sessionRepository, partnershipRepository, partnershipService,
		notificationService, clk, bus, cfg.SessionReminderWindow)
	userService := service.NewUserService(userRepository, profileRepository, fileService, emailService, slotService)
	authService := service.NewAuthService(
		userRepository,
		profileRepository,
		tokenRepository,
		profileService,
		emailService,
		clk,
		service.AuthConfig{
			JWTSecret:              cfg.JWTSecret,
			JWTExpiry:              cfg.JWTExpiry,
			TokenEmailVerifyExpiry: cfg.TokenEmailVerifyExpiry,
			TokenMagicLinkExpiry:   cfg.TokenMagicLinkExpiry,
			RequireVerifiedEmail:   cfg.RequireVerifiedEmail,
			SecureCookies:          cfg.IsProduction(),
		},
	)
	guideService := service.NewGuideService(accountable.GuideFS, "content/guide")
	scheduler := service.NewScheduler(
		slotService,
		sessionService,
		goalService,
		notificationService,
		tokenRepository,
		clk,
		service.SchedulerConfig{
			SweepInterval:       cfg.SlotSweepInterval,
			CheckInReminderTime: cfg.CheckInReminderTime,
		},
	)

	return &App{
		Cfg:                 cfg,
		DB:                  database,
		Clock:               clk,
		Bus:                 bus,
		ServiceWorker:       accountable.ServiceWorker,
		PushRelay:           relay,
		Dispatcher:          dispatcher,
		AuthService:         authService,
		UserService:         userService,
		ProfileService:      profileService,
		EmailService:        emailService,
		FileService:         fileService,
		SlotService:         slotService,
		StreakService:       streakService,
		GoalService:         goalService,
		PartnershipService:  partnershipService,
		MessageService:      messageService,
		MilestoneService:    milestoneService,
		SessionService:      sessionService,
		NotificationService: notificationService,
		GuideService:        guideService,
		Scheduler:           scheduler,
	}, nil
}

// newPushDispatcher prefers a remote relay, then in-process sending with the
// VAPID keys. With neither configured push is disabled and both results are nil.
func newPushDispatcher(cfg *config.Config, store push.SubscriptionStore) (*push.Relay, push.Dispatcher, error) {
	if cfg.PushRelayURL != "" {
		client, err := push.NewClient(cfg.PushRelayURL, cfg.PushRelaySecret)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("push notifications via relay", "url", cfg.PushRelayURL)
		return nil, client, nil
	}

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		slog.Info("push notifications disabled: no relay URL or VAPID keys")
		return nil, nil, nil
	}

	relay, err := push.NewRelay(push.NewWebPushSender(push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}), store, cfg.PushRelaySecret)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("push notifications in-process")

	// Without a secret the send endpoint would be open to anyone.
	if cfg.PushRelaySecret == "" {
		return nil, relay, nil
	}
	return relay, relay, nil
}

// Close stops background work and releases the database.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
