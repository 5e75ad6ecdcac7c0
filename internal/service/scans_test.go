package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/apperrors"
	"tessera/internal/fraud"
	"tessera/internal/models"
	"tessera/internal/repository"
)

var scanBase = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

type fakeEventStore struct {
	event     *models.Event
	err       error
	validated int
}

func (f *fakeEventStore) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

func (f *fakeEventStore) CountValidated(ctx context.Context, eventID int64) (int, error) {
	return f.validated, nil
}

type fakeTicketStore struct {
	mu       sync.Mutex
	ticket   *repository.ScanTicket
	err      error
	consumed bool
	full     bool

	validatedAt time.Time
}

func (f *fakeTicketStore) GetScanTicket(ctx context.Context, ticketCode string, eventID int64) (*repository.ScanTicket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ticket, nil
}

func (f *fakeTicketStore) ConsumeTicket(ctx context.Context, ticketID, eventGuestID, eventID int64, maxAttendees *int) (repository.ConsumeOutcome, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.full {
		return repository.ConsumeEventFull, nil, nil
	}
	if f.consumed {
		t := f.validatedAt
		return repository.ConsumeAlreadyUsed, &t, nil
	}
	f.consumed = true
	f.validatedAt = scanBase
	t := f.validatedAt
	return repository.ConsumeOK, &t, nil
}

type fakeScanStore struct {
	mu     sync.Mutex
	logs   []models.ScanLog
	recent []models.ScanLog
}

func (f *fakeScanStore) Create(ctx context.Context, log *models.ScanLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeScanStore) RecentForTicket(ctx context.Context, ticketID int64, limit int) ([]models.ScanLog, error) {
	return f.recent, nil
}

func (f *fakeScanStore) ListForEvent(ctx context.Context, eventID int64, from, to *time.Time, page, limit int) ([]models.ScanLog, int64, error) {
	return f.logs, int64(len(f.logs)), nil
}

func (f *fakeScanStore) resultCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		codes = append(codes, l.ResultCode)
	}
	return codes
}

func publishedEvent() *models.Event {
	future := scanBase.Add(6 * time.Hour)
	return &models.Event{
		ID:          1,
		OrganizerID: 42,
		Title:       "Summer Fest",
		EventDate:   &future,
		Status:      models.EventStatusPublished,
	}
}

func scanTicket() *repository.ScanTicket {
	return &repository.ScanTicket{
		ID:           100,
		TicketCode:   "TCK-100",
		EventGuestID: 10,
		EventID:      1,
		GuestName:    "Aida Nurlanova",
	}
}

func newScanService(events *fakeEventStore, tickets *fakeTicketStore, scans *fakeScanStore) *ScanService {
	s := NewScanService(events, tickets, scans, fraud.DefaultThresholds(), 2*time.Second)
	s.now = func() time.Time { return scanBase }
	return s
}

func organizer() Identity {
	return Identity{UserID: 42, Role: RoleUser}
}

func TestValidateHappyPath(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	scans := &fakeScanStore{}
	svc := newScanService(events, tickets, scans)

	resp, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), resp.TicketID)
	assert.Equal(t, "Aida Nurlanova", resp.GuestName)
	assert.Equal(t, scanBase, resp.ValidatedAt)

	require.Len(t, scans.logs, 1)
	assert.Equal(t, models.ScanResultValid, scans.logs[0].Result)
	assert.Equal(t, "VALID", scans.logs[0].ResultCode)
	assert.Equal(t, int64(42), scans.logs[0].OperatorID)
}

func TestValidateSecondScanRejected(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	scans := &fakeScanStore{}
	svc := newScanService(events, tickets, scans)

	req := &models.ValidateScanRequest{TicketCode: "TCK-100", EventID: 1}

	_, err := svc.Validate(context.Background(), organizer(), req)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), organizer(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTicketAlreadyUsed, apperrors.CodeOf(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, details["validated_at"])

	assert.Equal(t, []string{"VALID", apperrors.CodeTicketAlreadyUsed}, scans.resultCodes())
}

func TestValidateConcurrentScansExactlyOneWins(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	scans := &fakeScanStore{}
	svc := newScanService(events, tickets, scans)

	req := &models.ValidateScanRequest{TicketCode: "TCK-100", EventID: 1}

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(context.Background(), organizer(), req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, alreadyUsed int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		if apperrors.CodeOf(err) == apperrors.CodeTicketAlreadyUsed {
			alreadyUsed++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, alreadyUsed)
}

func TestValidateEventNotActive(t *testing.T) {
	event := publishedEvent()
	event.Status = models.EventStatusDraft
	events := &fakeEventStore{event: event}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	scans := &fakeScanStore{}
	svc := newScanService(events, tickets, scans)

	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEventNotActive, apperrors.CodeOf(err))
	assert.False(t, tickets.consumed, "gate failures must not consume")
	assert.Equal(t, []string{apperrors.CodeEventNotActive}, scans.resultCodes())
}

func TestValidateEventEnded(t *testing.T) {
	event := publishedEvent()
	past := scanBase.Add(-time.Hour)
	event.EventDate = &past
	events := &fakeEventStore{event: event}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	svc := newScanService(events, tickets, &fakeScanStore{})

	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEventEnded, apperrors.CodeOf(err))
}

func TestValidateEventFull(t *testing.T) {
	event := publishedEvent()
	max := 2
	event.MaxAttendees = &max
	events := &fakeEventStore{event: event, validated: 2}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	svc := newScanService(events, tickets, &fakeScanStore{})

	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEventFull, apperrors.CodeOf(err))
	assert.False(t, tickets.consumed)
}

func TestValidateEventFullInsideConsume(t *testing.T) {
	// Capacity reached between the pre-check and the conditional update
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket(), full: true}
	svc := newScanService(events, tickets, &fakeScanStore{})

	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEventFull, apperrors.CodeOf(err))
}

func TestValidateQRMismatch(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	svc := newScanService(events, tickets, &fakeScanStore{})

	qr := `{"id": 999, "eventId": 1, "timestamp": 1780000000}`
	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
		QRData:     &qr,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeQRTicketMismatch, apperrors.CodeOf(err))
	assert.False(t, tickets.consumed)
}

func TestValidateQRMalformed(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	svc := newScanService(events, tickets, &fakeScanStore{})

	qr := `not json`
	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
		QRData:     &qr,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidQRFormat, apperrors.CodeOf(err))
}

func TestValidateQRMatchAdmits(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	svc := newScanService(events, tickets, &fakeScanStore{})

	qr := `{"id": 100, "eventId": 1, "timestamp": 1780000000}`
	resp, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
		QRData:     &qr,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), resp.TicketID)
}

func TestValidateUnknownTicket(t *testing.T) {
	// The ticket repository reports a missing row as (nil, nil)
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{}
	svc := newScanService(events, tickets, &fakeScanStore{})

	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "NOPE",
		EventID:    1,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.Equal(t, apperrors.CodeTicketNotFound, apperrors.CodeOf(err))
}

func TestValidateUnknownEvent(t *testing.T) {
	events := &fakeEventStore{}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	svc := newScanService(events, tickets, &fakeScanStore{})

	_, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    999,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.Equal(t, apperrors.CodeEventNotFound, apperrors.CodeOf(err))
	assert.False(t, tickets.consumed)
}

func TestValidateForeignOperatorForbidden(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	scans := &fakeScanStore{}
	svc := newScanService(events, tickets, scans)

	_, err := svc.Validate(context.Background(), Identity{UserID: 7, Role: RoleUser}, &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	assert.False(t, tickets.consumed)
	assert.Equal(t, []string{"FORBIDDEN"}, scans.resultCodes(), "rejected attempts are audited")
}

func TestValidateAdvisoryAttachedButNotBlocking(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	tickets := &fakeTicketStore{ticket: scanTicket()}
	scans := &fakeScanStore{
		recent: []models.ScanLog{
			{TicketID: 100, ScanTime: scanBase.Add(-3 * time.Second)},
		},
	}
	svc := newScanService(events, tickets, scans)

	resp, err := svc.Validate(context.Background(), organizer(), &models.ValidateScanRequest{
		TicketCode: "TCK-100",
		EventID:    1,
	})

	require.NoError(t, err, "advisory must never affect admission")
	report, ok := resp.Advisory.(fraud.Report)
	require.True(t, ok)
	assert.Equal(t, fraud.RiskCritical, report.RiskLevel)
	assert.Equal(t, fraud.RecommendBlock, report.Recommendation)
}

func TestListScansUnknownEvent(t *testing.T) {
	svc := newScanService(&fakeEventStore{}, &fakeTicketStore{}, &fakeScanStore{})

	_, err := svc.ListScans(context.Background(), organizer(), 999, nil, nil, 1, 20)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEventNotFound, apperrors.CodeOf(err))
}

func TestListScansForbiddenForStranger(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	svc := newScanService(events, &fakeTicketStore{}, &fakeScanStore{})

	_, err := svc.ListScans(context.Background(), Identity{UserID: 7, Role: RoleUser}, 1, nil, nil, 1, 20)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestListScansAdminAllowed(t *testing.T) {
	events := &fakeEventStore{event: publishedEvent()}
	scans := &fakeScanStore{logs: []models.ScanLog{{TicketID: 100, EventID: 1}}}
	svc := newScanService(events, &fakeTicketStore{}, scans)

	resp, err := svc.ListScans(context.Background(), Identity{UserID: 7, Role: RoleAdmin}, 1, nil, nil, 0, 0)

	require.NoError(t, err)
	assert.Len(t, resp.Scans, 1)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 20, resp.Pagination.Limit)
}
