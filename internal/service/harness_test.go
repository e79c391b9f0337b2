package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/testutil"
)

// 15:00 UTC on a Monday.
var testNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

const testToday = "2025-06-02"

type fakeDispatcher struct {
	mu        sync.Mutex
	delivered []*push.Notification
	err       error
}

func (d *fakeDispatcher) Deliver(_ context.Context, n *push.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, n)
	return d.err
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

type harness struct {
	db         *sqlx.DB
	clock      *clock.Fixed
	events     *events.Recorder
	dispatcher *fakeDispatcher

	goalRepo         repository.GoalRepository
	partnershipRepo  repository.PartnershipRepository
	profileRepo      repository.ProfileRepository
	notificationRepo repository.NotificationRepository
	pushRepo         repository.PushSubscriptionRepository

	files         *FileService
	profiles      *ProfileService
	slots         *SlotService
	notifications *NotificationService
	partnerships  *PartnershipService
	streaks       *StreakService
	goals         *GoalService
	messages      *MessageService
	milestones    *MilestoneService
	sessions      *SessionService
	users         *UserService
	auth          *AuthService
}

type harnessOption func(*harness)

// withPartnershipRepo swaps the partnership repository, e.g. for one that fails.
func withPartnershipRepo(wrap func(repository.PartnershipRepository) repository.PartnershipRepository) harnessOption {
	return func(h *harness) {
		h.partnershipRepo = wrap(h.partnershipRepo)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	conn := testutil.NewDB(t)
	h := &harness{
		db:               conn,
		clock:            clock.NewFixed(testNow),
		events:           &events.Recorder{},
		dispatcher:       &fakeDispatcher{},
		goalRepo:         repository.NewGoalRepository(conn),
		partnershipRepo:  repository.NewPartnershipRepository(conn),
		profileRepo:      repository.NewProfileRepository(conn),
		notificationRepo: repository.NewNotificationRepository(conn),
		pushRepo:         repository.NewPushSubscriptionRepository(conn),
	}
	for _, opt := range opts {
		opt(h)
	}

	userRepo := repository.NewUserRepository(conn)
	messageRepo := repository.NewMessageRepository(conn)
	email := NewEmailService("", "noreply@example.com", "http://localhost:8090", "Accountable", true)

	h.files = NewFileService(repository.NewFileRepository(conn), nil, h.clock)
	h.profiles = NewProfileService(h.profileRepo, userRepo, h.files, h.clock)
	h.slots = NewSlotService(h.goalRepo, h.clock, h.events, 15*time.Minute)
	h.notifications = NewNotificationService(h.notificationRepo, messageRepo, h.partnershipRepo, h.pushRepo,
		userRepo, email, h.dispatcher, h.clock, h.events)
	h.partnerships = NewPartnershipService(h.partnershipRepo, h.goalRepo, h.profileRepo, h.slots,
		h.notifications, h.clock, h.events)
	h.streaks = NewStreakService(h.profileRepo, h.clock, h.events)
	h.goals = NewGoalService(h.goalRepo, h.streaks, h.files, h.clock, h.events, 20)
	h.messages = NewMessageService(messageRepo, h.profileRepo, h.partnerships, h.notifications, h.files, h.clock, h.events)
	h.milestones = NewMilestoneService(repository.NewMilestoneRepository(conn), h.partnerships, h.notifications, h.clock, h.events)
	h.sessions = NewSessionService(repository.NewVideoSessionRepository(conn), h.partnershipRepo, h.partnerships,
		h.notifications, h.clock, h.events, 15*time.Minute)
	h.users = NewUserService(userRepo, h.profileRepo, h.files, email, h.slots)
	h.auth = NewAuthService(userRepo, h.profileRepo, repository.NewTokenRepository(conn), h.profiles, email, h.clock, AuthConfig{
		JWTSecret:              "test-secret",
		JWTExpiry:              time.Hour,
		TokenEmailVerifyExpiry: time.Hour,
		TokenMagicLinkExpiry:   10 * time.Minute,
		RequireVerifiedEmail:   true,
	})
	return h
}

func (h *harness) user(t *testing.T, username string) string {
	t.Helper()
	return testutil.CreateUser(t, h.db, username)
}

// activePartnership creates and accepts a request between a and b.
func (h *harness) activePartnership(t *testing.T, a, b string) string {
	t.Helper()

	ctx := context.Background()
	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b})
	if err != nil {
		t.Fatalf("create partnership: %v", err)
	}
	_, err = h.partnerships.Accept(ctx, res.Partnership.ID, b)
	if err != nil {
		t.Fatalf("accept partnership: %v", err)
	}
	return res.Partnership.ID
}

func pushSub(endpoint string) push.Subscription {
	return push.Subscription{
		Endpoint: endpoint,
		Keys:     push.Keys{P256dh: "p256dh-key", Auth: "auth-key"},
	}
}
