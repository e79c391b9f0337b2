package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/ctxkeys"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/service"
	"github.com/templui/accountable/internal/testutil"
	"github.com/templui/accountable/internal/validation"
)

var testNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

const testToday = "2025-06-02"

// testServer mounts the goal and partnership endpoints over a real SQLite
// database. Requests name the acting user in the X-Test-User header.
type testServer struct {
	db  *sqlx.DB
	mux http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn := testutil.NewDB(t)
	clk := clock.NewFixed(testNow)
	rec := &events.Recorder{}

	userRepo := repository.NewUserRepository(conn)
	goalRepo := repository.NewGoalRepository(conn)
	partnershipRepo := repository.NewPartnershipRepository(conn)
	profileRepo := repository.NewProfileRepository(conn)
	email := service.NewEmailService("", "noreply@example.com", "http://localhost:8090", "Accountable", true)

	files := service.NewFileService(repository.NewFileRepository(conn), nil, clk)
	slots := service.NewSlotService(goalRepo, clk, rec, 15*time.Minute)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(conn),
		repository.NewMessageRepository(conn), partnershipRepo, repository.NewPushSubscriptionRepository(conn),
		userRepo, email, nil, clk, rec)
	partnerships := service.NewPartnershipService(partnershipRepo, goalRepo, profileRepo, slots, notifications, clk, rec)
	goals := service.NewGoalService(goalRepo, service.NewStreakService(profileRepo, clk, rec), files, clk, rec, 20)

	goal := NewGoalHandler(goals)
	partnership := NewPartnershipHandler(partnerships)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/goals", goal.Create)
	mux.HandleFunc("GET /api/goals/today", goal.Today)
	mux.HandleFunc("POST /api/goals/{id}/check-in", goal.CheckIn)
	mux.HandleFunc("POST /api/partnerships", partnership.Create)
	mux.HandleFunc("GET /api/partnerships", partnership.List)
	mux.HandleFunc("POST /api/partnerships/{id}/accept", partnership.Accept)

	withUser := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(ctxkeys.WithUser(r.Context(), &model.User{ID: id}))
		}
		mux.ServeHTTP(w, r)
	})

	return &testServer{db: conn, mux: withUser}
}

func (s *testServer) do(t *testing.T, method, target, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &validation.Error{Field: "goal_text", Message: "goal_text is required"}, want: http.StatusBadRequest},
		{err: push.ErrMissingFields, want: http.StatusBadRequest},
		{err: service.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{err: fmt.Errorf("%w: expired", service.ErrInvalidJWT), want: http.StatusUnauthorized},
		{err: service.ErrEmailNotVerified, want: http.StatusForbidden},
		{err: model.ErrNotParticipant, want: http.StatusForbidden},
		{err: fmt.Errorf("lookup: %w", repository.ErrPartnershipNotFound), want: http.StatusNotFound},
		{err: service.ErrGuideStepNotFound, want: http.StatusNotFound},
		{err: model.ErrInvalidTransition, want: http.StatusConflict},
		{err: repository.ErrDuplicateUsername, want: http.StatusConflict},
		{err: service.ErrStorageDisabled, want: http.StatusServiceUnavailable},
		{err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decode[errorBody](t, rec)
			assert.NotEmpty(t, body.Error)
		})
	}

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), &validation.Error{Field: "bio", Message: "bio is too long"})
	assert.Equal(t, errorBody{Error: "bio is too long", Field: "bio"}, decode[errorBody](t, rec))

	rec = httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("select * from secrets failed"))
	assert.NotContains(t, rec.Body.String(), "secrets", "internal errors are not echoed")
}

func TestGoalHandler_CreateAndToday(t *testing.T) {
	s := newTestServer(t)
	me := testutil.CreateUser(t, s.db, "ada")

	rec := s.do(t, http.MethodGet, "/api/goals/today", me, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"goal":null}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/goals", me, `{"goal_text":"Ship the onboarding flow","mystery":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = s.do(t, http.MethodPost, "/api/goals", me, map[string]any{"goal_text": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "goal_text", decode[errorBody](t, rec).Field)

	rec = s.do(t, http.MethodPost, "/api/goals", me, map[string]any{"goal_text": "Ship the onboarding flow", "join_limit": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Goal](t, rec)
	assert.Equal(t, testToday, created.Date)

	rec = s.do(t, http.MethodPost, "/api/goals", me, map[string]any{"goal_text": "A second goal"})
	assert.Equal(t, http.StatusConflict, rec.Code, "one goal per day")

	rec = s.do(t, http.MethodGet, "/api/goals/today", me, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	today := decode[struct {
		Goal  model.Goal             `json:"goal"`
		Slots model.SlotAvailability `json:"slots"`
	}](t, rec)
	assert.Equal(t, created.ID, today.Goal.ID)
	assert.Equal(t, 2, today.Slots.Limit)

	rec = s.do(t, http.MethodPost, "/api/goals/"+created.ID+"/check-in", me, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "done", decode[errorBody](t, rec).Field)

	rec = s.do(t, http.MethodPost, "/api/goals/"+created.ID+"/check-in", me, `{"done":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[service.CheckInResult](t, rec)
	require.NotNil(t, result.Profile)
	assert.Equal(t, 1, result.Profile.CurrentStreak)
}

func TestPartnershipHandler_CreateOutcomes(t *testing.T) {
	s := newTestServer(t)
	owner := testutil.CreateUser(t, s.db, "owner")
	x := testutil.CreateUser(t, s.db, "xavier")
	y := testutil.CreateUser(t, s.db, "yasmin")
	goalID := testutil.CreateGoal(t, s.db, owner, testToday, 1)

	rec := s.do(t, http.MethodPost, "/api/partnerships", x, map[string]any{"receiver_id": owner, "goal_id": goalID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[service.CreateResult](t, rec)
	assert.Equal(t, service.OutcomeCreated, first.Outcome)
	require.NotNil(t, first.Partnership)

	rec = s.do(t, http.MethodPost, "/api/partnerships", y, map[string]any{"receiver_id": owner, "goal_id": goalID})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"outcome":"goal_full"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/partnerships", x, map[string]any{"receiver_id": owner})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.OutcomeAlreadyPending, decode[service.CreateResult](t, rec).Outcome)

	rec = s.do(t, http.MethodPost, "/api/partnerships/"+first.Partnership.ID+"/accept", y, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only participants may act")

	rec = s.do(t, http.MethodPost, "/api/partnerships/"+first.Partnership.ID+"/accept", x, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "the requester cannot accept")

	rec = s.do(t, http.MethodPost, "/api/partnerships/"+first.Partnership.ID+"/accept", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PartnershipActive, decode[model.Partnership](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/partnerships/"+first.Partnership.ID+"/accept", owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "accepting twice is a no-op")

	rec = s.do(t, http.MethodPost, "/api/partnerships/missing/accept", owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPartnershipHandler_SelfRequestIsInvalid(t *testing.T) {
	s := newTestServer(t)
	me := testutil.CreateUser(t, s.db, "ada")

	rec := s.do(t, http.MethodPost, "/api/partnerships", me, map[string]any{"receiver_id": me})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
