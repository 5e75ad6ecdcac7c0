package service

import (
	"context"
	"log/slog"
	"time"

	"tessera/internal/apperrors"
	"tessera/internal/fraud"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/monitoring"
	"tessera/internal/repository"
)

// recentScanSample is how much history the fraud analyzer sees
const recentScanSample = 10

// ScanTicketStore is the ticket repository surface the scan engine uses
type ScanTicketStore interface {
	GetScanTicket(ctx context.Context, ticketCode string, eventID int64) (*repository.ScanTicket, error)
	ConsumeTicket(ctx context.Context, ticketID, eventGuestID, eventID int64, maxAttendees *int) (repository.ConsumeOutcome, *time.Time, error)
}

// ScanEventStore resolves events and their validated counts
type ScanEventStore interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	CountValidated(ctx context.Context, eventID int64) (int, error)
}

// ScanLogStore records attempts and serves recent history
type ScanLogStore interface {
	Create(ctx context.Context, log *models.ScanLog) error
	RecentForTicket(ctx context.Context, ticketID int64, limit int) ([]models.ScanLog, error)
	ListForEvent(ctx context.Context, eventID int64, from, to *time.Time, page, limit int) ([]models.ScanLog, int64, error)
}

// ScanService validates tickets at the door. Every attempt, admitted or
// rejected, leaves an audit row.
type ScanService struct {
	events     ScanEventStore
	tickets    ScanTicketStore
	scans      ScanLogStore
	thresholds fraud.Thresholds
	timeout    time.Duration
	now        func() time.Time
}

func NewScanService(events ScanEventStore, tickets ScanTicketStore, scans ScanLogStore, thresholds fraud.Thresholds, timeout time.Duration) *ScanService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ScanService{
		events:     events,
		tickets:    tickets,
		scans:      scans,
		thresholds: thresholds,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Validate runs the full gate sequence and, on admission, consumes the
// ticket. Two concurrent calls for the same ticket produce exactly one
// success; the loser gets TICKET_ALREADY_USED with the winner's timestamp.
func (s *ScanService) Validate(ctx context.Context, identity Identity, req *models.ValidateScanRequest) (*models.ValidateScanResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ticket, err := s.tickets.GetScanTicket(ctx, req.TicketCode, req.EventID)
	if err != nil {
		s.trackResult(apperrors.CodeOf(err))
		return nil, err
	}
	if ticket == nil {
		s.trackResult(apperrors.CodeTicketNotFound)
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeTicketNotFound,
			"no ticket matches the scanned code for this event")
	}

	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		s.trackResult(apperrors.CodeOf(err))
		return nil, err
	}
	if event == nil {
		s.trackResult(apperrors.CodeEventNotFound)
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeEventNotFound, "event not found")
	}

	if !identity.IsAdmin() && event.OrganizerID != identity.UserID {
		s.audit(ctx, identity, ticket, req, models.ScanResultInvalid, "FORBIDDEN")
		return nil, apperrors.New(apperrors.KindForbidden, "FORBIDDEN",
			"operator is not authorized for this event")
	}

	if err := s.gate(ctx, event, ticket, req); err != nil {
		s.audit(ctx, identity, ticket, req, models.ScanResultInvalid, apperrors.CodeOf(err))
		return nil, err
	}

	outcome, validatedAt, err := s.tickets.ConsumeTicket(ctx, ticket.ID, ticket.EventGuestID, req.EventID, event.MaxAttendees)
	if err != nil {
		s.trackResult(apperrors.CodeOf(err))
		return nil, err
	}

	switch outcome {
	case repository.ConsumeAlreadyUsed:
		err := apperrors.New(apperrors.KindConflict, apperrors.CodeTicketAlreadyUsed,
			"ticket has already been used")
		if validatedAt != nil {
			err = err.WithDetails(map[string]any{"validated_at": validatedAt})
		}
		s.audit(ctx, identity, ticket, req, models.ScanResultInvalid, apperrors.CodeTicketAlreadyUsed)
		return nil, err
	case repository.ConsumeNotFound:
		s.audit(ctx, identity, ticket, req, models.ScanResultInvalid, apperrors.CodeTicketNotFound)
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeTicketNotFound, "ticket not found")
	case repository.ConsumeEventFull:
		s.audit(ctx, identity, ticket, req, models.ScanResultInvalid, apperrors.CodeEventFull)
		return nil, apperrors.New(apperrors.KindBusinessRule, apperrors.CodeEventFull, "event is at capacity")
	}

	s.audit(ctx, identity, ticket, req, models.ScanResultValid, "VALID")

	resp := &models.ValidateScanResponse{
		TicketID:    ticket.ID,
		TicketCode:  ticket.TicketCode,
		GuestName:   ticket.GuestName,
		ValidatedAt: derefTime(validatedAt, s.now()),
	}
	resp.Advisory = s.advisory(ctx, ticket.ID, req)

	return resp, nil
}

// gate runs the business checks that reject without consuming
func (s *ScanService) gate(ctx context.Context, event *models.Event, ticket *repository.ScanTicket, req *models.ValidateScanRequest) error {
	if event.Status != models.EventStatusPublished {
		return apperrors.Newf(apperrors.KindBusinessRule, apperrors.CodeEventNotActive,
			"event is %s, scans are only accepted for published events", event.Status)
	}
	if event.EventDate != nil && event.EventDate.Before(s.now()) {
		return apperrors.New(apperrors.KindBusinessRule, apperrors.CodeEventEnded, "event has ended")
	}

	// Soft capacity check. ConsumeTicket rechecks inside the transaction,
	// this one just rejects early without taking the row lock.
	if event.MaxAttendees != nil {
		validated, err := s.events.CountValidated(ctx, event.ID)
		if err != nil {
			return err
		}
		if validated >= *event.MaxAttendees {
			return apperrors.New(apperrors.KindBusinessRule, apperrors.CodeEventFull, "event is at capacity")
		}
	}

	if req.QRData != nil && *req.QRData != "" {
		payload, err := models.ParseQRPayload(*req.QRData)
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidQRFormat,
				"qr payload is not valid", err)
		}
		if payload.ID != ticket.ID || payload.EventID != req.EventID {
			return apperrors.New(apperrors.KindValidation, apperrors.CodeQRTicketMismatch,
				"qr payload does not match the scanned ticket")
		}
	}

	return nil
}

// advisory runs the fraud analyzer over recent history. Failures here are
// logged and swallowed: the advisory never affects admission.
func (s *ScanService) advisory(ctx context.Context, ticketID int64, req *models.ValidateScanRequest) any {
	recent, err := s.scans.RecentForTicket(ctx, ticketID, recentScanSample)
	if err != nil {
		logger.WithContext(ctx).Warn("fraud history unavailable",
			slog.Int64("ticket_id", ticketID), slog.Any("error", err))
		return nil
	}

	current := fraud.Scan{
		Time:      s.now(),
		Location:  req.ScanContext.Location,
		DeviceID:  req.ScanContext.DeviceID,
		Latitude:  req.ScanContext.Latitude,
		Longitude: req.ScanContext.Longitude,
	}
	history := make([]fraud.Scan, 0, len(recent))
	for i := range recent {
		history = append(history, fraud.Scan{
			Time:      recent[i].ScanTime,
			Location:  recent[i].Location,
			DeviceID:  recent[i].DeviceID,
			Latitude:  recent[i].Latitude,
			Longitude: recent[i].Longitude,
		})
	}

	report := fraud.Analyze(current, history, s.thresholds)
	return report
}

// audit writes the append-only scan row. Audit failures are logged, not
// surfaced: the scan verdict stands either way.
func (s *ScanService) audit(ctx context.Context, identity Identity, ticket *repository.ScanTicket, req *models.ValidateScanRequest, result, code string) {
	log := &models.ScanLog{
		TicketID:   ticket.ID,
		EventID:    req.EventID,
		OperatorID: identity.UserID,
		ScanTime:   s.now(),
		Location:   req.ScanContext.Location,
		DeviceID:   req.ScanContext.DeviceID,
		Checkpoint: req.ScanContext.Checkpoint,
		Latitude:   req.ScanContext.Latitude,
		Longitude:  req.ScanContext.Longitude,
		Result:     result,
		ResultCode: code,
	}
	if err := s.scans.Create(ctx, log); err != nil {
		logger.WithContext(ctx).Error("scan audit write failed",
			slog.Int64("ticket_id", ticket.ID), slog.Any("error", err))
	}
	s.trackResult(code)
}

// ListScans pages through an event's scan history, organizer only
func (s *ScanService) ListScans(ctx context.Context, identity Identity, eventID int64, from, to *time.Time, page, limit int) (*models.ListScansResponse, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeEventNotFound, "event not found")
	}
	if !identity.IsAdmin() && event.OrganizerID != identity.UserID {
		return nil, apperrors.New(apperrors.KindForbidden, "FORBIDDEN",
			"only the event organizer can view scan history")
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	scans, total, err := s.scans.ListForEvent(ctx, eventID, from, to, page, limit)
	if err != nil {
		return nil, err
	}
	if scans == nil {
		scans = []models.ScanLog{}
	}

	return &models.ListScansResponse{
		Scans: scans,
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
		},
	}, nil
}

func (s *ScanService) trackResult(code string) {
	if code == "" {
		code = "INTERNAL"
	}
	monitoring.TrackScan(code)
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

var (
	_ ScanTicketStore = (*repository.TicketRepository)(nil)
	_ ScanEventStore  = (*repository.EventRepository)(nil)
	_ ScanLogStore    = (*repository.ScanRepository)(nil)
)
