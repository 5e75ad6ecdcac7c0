package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/apperrors"
	"tessera/internal/fraud"
	"tessera/internal/messaging"
	"tessera/internal/middleware"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/service"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "test-webhook-secret"
)

var handlerBase = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

// Fakes backing the service layer

type stubEvents struct {
	event *models.Event
}

func (s *stubEvents) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	return s.event, nil
}

func (s *stubEvents) CountValidated(ctx context.Context, eventID int64) (int, error) {
	return 0, nil
}

type stubTickets struct {
	ticket      *repository.ScanTicket
	outcome     repository.ConsumeOutcome
	validatedAt *time.Time
}

func (s *stubTickets) GetScanTicket(ctx context.Context, ticketCode string, eventID int64) (*repository.ScanTicket, error) {
	return s.ticket, nil
}

func (s *stubTickets) ConsumeTicket(ctx context.Context, ticketID, eventGuestID, eventID int64, maxAttendees *int) (repository.ConsumeOutcome, *time.Time, error) {
	return s.outcome, s.validatedAt, nil
}

type stubScans struct {
	logs []models.ScanLog
}

func (s *stubScans) Create(ctx context.Context, log *models.ScanLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func (s *stubScans) RecentForTicket(ctx context.Context, ticketID int64, limit int) ([]models.ScanLog, error) {
	return nil, nil
}

func (s *stubScans) ListForEvent(ctx context.Context, eventID int64, from, to *time.Time, page, limit int) ([]models.ScanLog, int64, error) {
	return s.logs, int64(len(s.logs)), nil
}

type stubJobs struct {
	jobs map[string]*models.GenerationJob
}

func (s *stubJobs) Create(ctx context.Context, job *models.GenerationJob) error {
	if s.jobs == nil {
		s.jobs = map[string]*models.GenerationJob{}
	}
	s.jobs[job.UID] = job
	return nil
}

func (s *stubJobs) GetByUID(ctx context.Context, uid string) (*models.GenerationJob, error) {
	return s.jobs[uid], nil
}

func (s *stubJobs) ListForEvent(ctx context.Context, eventID int64, status string, page, limit int) ([]models.GenerationJob, int64, error) {
	return nil, 0, nil
}

func (s *stubJobs) MarkFailed(ctx context.Context, uid, reason string) error { return nil }

func (s *stubJobs) ApplyResult(ctx context.Context, msg *models.ResultMessage) (bool, error) {
	job, ok := s.jobs[msg.JobUID]
	if !ok {
		return false, apperrors.New(apperrors.KindNotFound, apperrors.CodeJobNotFound, "generation job not found")
	}
	if models.IsTerminalJobStatus(job.Status) {
		return false, nil
	}
	job.Status = msg.Status
	return true, nil
}

type stubEnricher struct{}

func (stubEnricher) Enrich(ctx context.Context, eventID int64, ticketIDs []int64) ([]models.EnrichedTicket, []models.EnrichDiagnostic, error) {
	out := make([]models.EnrichedTicket, len(ticketIDs))
	for i, id := range ticketIDs {
		out[i] = models.EnrichedTicket{TicketID: id}
	}
	return out, nil, nil
}

type stubQueue struct{}

func (stubQueue) Enqueue(ctx context.Context, queue string, payload any, opts messaging.EnqueueOptions) error {
	return nil
}

func (stubQueue) Stats(ctx context.Context, queue string) (*models.QueueView, error) {
	return &models.QueueView{}, nil
}

func testEvent() *models.Event {
	future := time.Now().Add(24 * time.Hour)
	return &models.Event{
		ID:          1,
		OrganizerID: 42,
		Title:       "Summer Fest",
		EventDate:   &future,
		Status:      models.EventStatusPublished,
	}
}

func setupRouter(t *testing.T, jobs *stubJobs, tickets *stubTickets) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := &stubEvents{event: testEvent()}
	scans := &stubScans{}

	svc := &service.Services{
		Jobs:       service.NewJobService(events, jobs, stubEnricher{}, stubQueue{}),
		Scans:      service.NewScanService(events, tickets, scans, fraud.DefaultThresholds(), 2*time.Second),
		Reconciler: service.NewReconciler(jobs),
	}
	h := NewHandlers(svc, nil)

	r := gin.New()

	api := r.Group("/api")
	api.Use(middleware.JWTAuth(testJWTSecret))
	{
		api.POST("/tickets/generation-jobs", h.CreateGenerationJob)
		api.GET("/tickets/generation-jobs/:job_uid", h.GetGenerationJob)
		api.POST("/scans/validate", h.ValidateScan)
		api.GET("/events/:event_id/scans", h.ListScans)
	}

	internal := r.Group("/internal")
	internal.Use(middleware.WebhookAuth(testWebhookSecret))
	{
		internal.POST("/generation/webhook", h.GenerationWebhook)
	}

	return r
}

func signToken(t *testing.T, userID int64, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func authedRequest(t *testing.T, method, path string, body any, userID int64) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, "user"))
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateGenerationJob(t *testing.T) {
	jobs := &stubJobs{}
	r := setupRouter(t, jobs, &stubTickets{})

	req := authedRequest(t, "POST", "/api/tickets/generation-jobs", models.CreateGenerationJobRequest{
		EventID:   1,
		TicketIDs: []int64{1, 2},
	}, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(2), data["tickets_count"])
	assert.NotEmpty(t, data["job_uid"])
}

func TestCreateGenerationJobValidation(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	req := authedRequest(t, "POST", "/api/tickets/generation-jobs", models.CreateGenerationJobRequest{
		EventID: 1,
	}, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "VALIDATION", resp.Code)
}

func TestCreateGenerationJobRequiresAuth(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	body, _ := json.Marshal(models.CreateGenerationJobRequest{EventID: 1, TicketIDs: []int64{1}})
	req, _ := http.NewRequest("POST", "/api/tickets/generation-jobs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetGenerationJobNotFound(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	req := authedRequest(t, "GET", "/api/tickets/generation-jobs/nope", nil, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, apperrors.CodeJobNotFound, resp.Code)
}

func TestValidateScan(t *testing.T) {
	validatedAt := handlerBase
	tickets := &stubTickets{
		ticket: &repository.ScanTicket{
			ID: 100, TicketCode: "TCK-100", EventGuestID: 10, EventID: 1, GuestName: "Aida",
		},
		outcome:     repository.ConsumeOK,
		validatedAt: &validatedAt,
	}
	r := setupRouter(t, &stubJobs{}, tickets)

	req := authedRequest(t, "POST", "/api/scans/validate", models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	}, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(100), data["ticket_id"])
	assert.Equal(t, "Aida", data["guest_name"])
}

func TestValidateScanAlreadyUsed(t *testing.T) {
	prior := handlerBase.Add(-time.Hour)
	tickets := &stubTickets{
		ticket: &repository.ScanTicket{
			ID: 100, TicketCode: "TCK-100", EventGuestID: 10, EventID: 1,
		},
		outcome:     repository.ConsumeAlreadyUsed,
		validatedAt: &prior,
	}
	r := setupRouter(t, &stubJobs{}, tickets)

	req := authedRequest(t, "POST", "/api/scans/validate", models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	}, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.CodeTicketAlreadyUsed, resp.Code)
	assert.NotNil(t, resp.Details)
}

func TestValidateScanUnknownTicket(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	req := authedRequest(t, "POST", "/api/scans/validate", models.ValidateScanRequest{
		TicketCode: "NOPE",
		EventID:    1,
	}, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, apperrors.CodeTicketNotFound, resp.Code)
}

func signWebhookBody(body []byte) string {
	h := hmac.New(sha256.New, []byte(testWebhookSecret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func TestWebhookAppliesResult(t *testing.T) {
	jobs := &stubJobs{jobs: map[string]*models.GenerationJob{
		"job-1": {UID: "job-1", EventID: 1, Status: models.JobStatusPending},
	}}
	r := setupRouter(t, jobs, &stubTickets{})

	body, _ := json.Marshal(models.ResultMessage{
		JobUID:    "job-1",
		Status:    models.JobStatusCompleted,
		Timestamp: handlerBase,
	})
	req, _ := http.NewRequest("POST", "/internal/generation/webhook", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signWebhookBody(body))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobStatusCompleted, jobs.jobs["job-1"].Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	body, _ := json.Marshal(models.ResultMessage{JobUID: "job-1", Status: models.JobStatusCompleted})
	req, _ := http.NewRequest("POST", "/internal/generation/webhook", bytes.NewBuffer(body))
	req.Header.Set("X-Webhook-Signature", "deadbeef")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	req, _ := http.NewRequest("POST", "/internal/generation/webhook", bytes.NewBufferString("{}"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListScansEnvelope(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	req := authedRequest(t, "GET", "/api/events/1/scans?page=1&limit=10", nil, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestListScansBadDateFilter(t *testing.T) {
	r := setupRouter(t, &stubJobs{}, &stubTickets{})

	req := authedRequest(t, "GET", "/api/events/1/scans?date_from=yesterday", nil, 42)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
