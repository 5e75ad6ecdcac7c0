package repository

import (
	"tessera/internal/database"
)

type Repositories struct {
	Events      *EventRepository
	Guests      *GuestRepository
	EventGuests *EventGuestRepository
	TicketTypes *TicketTypeRepository
	Tickets     *TicketRepository
	Jobs        *JobRepository
	Scans       *ScanRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Events:      NewEventRepository(db),
		Guests:      NewGuestRepository(db),
		EventGuests: NewEventGuestRepository(db),
		TicketTypes: NewTicketTypeRepository(db),
		Tickets:     NewTicketRepository(db),
		Jobs:        NewJobRepository(db),
		Scans:       NewScanRepository(db),
	}
}
