// Package enrichment assembles render-ready ticket payloads from the
// relational graph. Tickets with broken or soft-deleted references are
// skipped with a diagnostic rather than failing the whole batch.
package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tessera/internal/apperrors"
	"tessera/internal/models"
	"tessera/internal/repository"
)

const (
	// MaxBatchSize bounds one enrichment request
	MaxBatchSize = 500

	// Skip reasons recorded in diagnostics
	ReasonNotFound       = "ticket_not_found"
	ReasonWrongEvent     = "wrong_event"
	ReasonMissingRefs    = "missing_references"
	ReasonInvalidPayload = "invalid_payload"
)

// RowFetcher is the slice of the ticket repository enrichment needs
type RowFetcher interface {
	FetchEnrichmentRows(ctx context.Context, ticketIDs []int64) ([]repository.EnrichmentRow, error)
}

// Enricher builds renderer payloads for ticket batches
type Enricher struct {
	tickets RowFetcher
}

func New(tickets RowFetcher) *Enricher {
	return &Enricher{tickets: tickets}
}

// Enrich resolves the requested tickets for eventID into renderer payloads.
// Tickets with missing or foreign references are skipped with a diagnostic;
// an empty usable set or a payload that fails validation is an error.
func (e *Enricher) Enrich(ctx context.Context, eventID int64, ticketIDs []int64) ([]models.EnrichedTicket, []models.EnrichDiagnostic, error) {
	if len(ticketIDs) == 0 {
		return nil, nil, apperrors.New(apperrors.KindValidation, apperrors.CodeNoEnrichableTickets,
			"no ticket ids supplied")
	}
	if len(ticketIDs) > MaxBatchSize {
		return nil, nil, apperrors.Newf(apperrors.KindValidation, apperrors.CodeInvalidEnrichedData,
			"batch of %d tickets exceeds the limit of %d", len(ticketIDs), MaxBatchSize)
	}

	rows, err := e.tickets.FetchEnrichmentRows(ctx, ticketIDs)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[int64]repository.EnrichmentRow, len(rows))
	for _, row := range rows {
		byID[row.TicketID] = row
	}

	var enriched []models.EnrichedTicket
	var diagnostics []models.EnrichDiagnostic
	var invalid []models.EnrichDiagnostic

	seen := make(map[int64]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		row, ok := byID[id]
		if !ok {
			diagnostics = append(diagnostics, models.EnrichDiagnostic{
				TicketID: id,
				Reason:   ReasonNotFound,
			})
			continue
		}

		if row.JoinEventID != nil && *row.JoinEventID != eventID {
			diagnostics = append(diagnostics, models.EnrichDiagnostic{
				TicketID: id,
				Reason:   ReasonWrongEvent,
			})
			continue
		}

		if missing := missingReferences(row); len(missing) > 0 {
			diagnostics = append(diagnostics, models.EnrichDiagnostic{
				TicketID: id,
				Reason:   ReasonMissingRefs,
				Missing:  missing,
			})
			continue
		}

		ticket := buildPayload(row)
		if fields := validatePayload(ticket); len(fields) > 0 {
			invalid = append(invalid, models.EnrichDiagnostic{
				TicketID: id,
				Reason:   ReasonInvalidPayload,
				Missing:  fields,
			})
			continue
		}

		enriched = append(enriched, ticket)
	}

	// Invalid payloads on resolvable tickets fail the whole batch
	if len(invalid) > 0 {
		err := apperrors.Newf(apperrors.KindValidation, apperrors.CodeInvalidEnrichedData,
			"%d of %d tickets produced invalid payloads", len(invalid), len(ticketIDs))
		return nil, append(diagnostics, invalid...), err.WithDetails(map[string]any{"tickets": invalid})
	}

	if len(enriched) == 0 {
		return nil, diagnostics, apperrors.Newf(apperrors.KindBusinessRule, apperrors.CodeNoEnrichableTickets,
			"none of the %d requested tickets could be enriched", len(ticketIDs))
	}

	return enriched, diagnostics, nil
}

// missingReferences names the joins that came back NULL
func missingReferences(row repository.EnrichmentRow) []string {
	var missing []string
	if row.EventGuestID == nil || row.GuestEmail == nil {
		missing = append(missing, "guest")
	}
	if row.TypeID == nil {
		missing = append(missing, "ticket_type")
	}
	if row.TemplatePath == nil {
		missing = append(missing, "template")
	}
	if row.EventID == nil {
		missing = append(missing, "event")
	}
	return missing
}

func buildPayload(row repository.EnrichmentRow) models.EnrichedTicket {
	name := strings.TrimSpace(fmt.Sprintf("%s %s", deref(row.GuestFirstName), deref(row.GuestLastName)))

	// Renderers expect a stable UTC timestamp. Events without a scheduled
	// date fall back to their creation time.
	eventDate := row.EventCreatedAt
	if row.EventDate != nil {
		eventDate = row.EventDate
	}
	var date string
	if eventDate != nil {
		date = eventDate.UTC().Format(time.RFC3339)
	}

	return models.EnrichedTicket{
		TicketID:   row.TicketID,
		TicketCode: row.TicketCode,
		Guest: models.GuestPayload{
			Name:  name,
			Email: deref(row.GuestEmail),
			Phone: row.GuestPhone,
		},
		TicketType: models.TicketTypePayload{
			ID:   derefID(row.TypeID),
			Name: deref(row.TypeName),
		},
		Template: models.TemplatePayload{
			ID:              row.TemplateID,
			SourceFilesPath: deref(row.TemplatePath),
			PreviewURL:      row.TemplateURL,
		},
		Event: models.EventPayload{
			ID:       derefID(row.EventID),
			Title:    deref(row.EventTitle),
			Location: deref(row.EventLocation),
			Date:     date,
		},
	}
}

// validatePayload names the fields a renderer cannot work without
func validatePayload(t models.EnrichedTicket) []string {
	var invalid []string
	if t.Guest.Email == "" {
		invalid = append(invalid, "guest.email")
	}
	if t.Template.SourceFilesPath == "" {
		invalid = append(invalid, "template.source_files_path")
	}
	if t.Event.Title == "" {
		invalid = append(invalid, "event.title")
	}
	if t.Event.Date == "" {
		invalid = append(invalid, "event.date")
	}
	return invalid
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
