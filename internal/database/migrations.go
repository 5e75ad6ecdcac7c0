package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createGuestsTable,
		createEventGuestsTable,
		createTicketTypesTable,
		createTicketTemplatesTable,
		createTicketsTable,
		createGenerationJobsTable,
		createScanLogsTable,
		createIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id SERIAL PRIMARY KEY,
    organizer_id BIGINT NOT NULL,
    title VARCHAR(500) NOT NULL,
    description TEXT,
    event_date TIMESTAMPTZ,
    location VARCHAR(500),
    status VARCHAR(20) NOT NULL DEFAULT 'draft',
    max_attendees INTEGER,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,

    CHECK (status IN ('draft', 'published', 'archived'))
);`

const createGuestsTable = `
CREATE TABLE IF NOT EXISTS guests (
    id SERIAL PRIMARY KEY,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100),
    email VARCHAR(255),
    phone VARCHAR(50),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS guests_email_unique_idx
ON guests (LOWER(email)) WHERE email IS NOT NULL AND deleted_at IS NULL;`

const createEventGuestsTable = `
CREATE TABLE IF NOT EXISTS event_guests (
    id SERIAL PRIMARY KEY,
    event_id INTEGER NOT NULL REFERENCES events(id),
    guest_id INTEGER NOT NULL REFERENCES guests(id),
    invitation_code VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    is_present BOOLEAN NOT NULL DEFAULT FALSE,
    check_in_time TIMESTAMPTZ,
    created_by BIGINT,
    updated_by BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,

    CHECK (status IN ('pending', 'confirmed', 'cancelled'))
);
CREATE UNIQUE INDEX IF NOT EXISTS event_guests_invitation_code_idx
ON event_guests (invitation_code) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS event_guests_event_guest_idx
ON event_guests (event_id, guest_id) WHERE deleted_at IS NULL;`

const createTicketTypesTable = `
CREATE TABLE IF NOT EXISTS ticket_types (
    id SERIAL PRIMARY KEY,
    event_id INTEGER NOT NULL REFERENCES events(id),
    name VARCHAR(255) NOT NULL,
    type VARCHAR(20) NOT NULL DEFAULT 'free',
    quantity INTEGER NOT NULL DEFAULT 0,
    price DECIMAL(10,2) NOT NULL DEFAULT 0,
    currency VARCHAR(3) NOT NULL DEFAULT 'USD',
    available_from TIMESTAMPTZ,
    available_to TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,

    CHECK (type IN ('free', 'paid', 'donation'))
);`

const createTicketTemplatesTable = `
CREATE TABLE IF NOT EXISTS ticket_templates (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    source_files_path TEXT NOT NULL,
    preview_url TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id SERIAL PRIMARY KEY,
    ticket_code VARCHAR(64) NOT NULL,
    qr_code_data TEXT,
    ticket_type_id INTEGER NOT NULL REFERENCES ticket_types(id),
    ticket_template_id INTEGER REFERENCES ticket_templates(id),
    event_guest_id INTEGER NOT NULL REFERENCES event_guests(id),
    price DECIMAL(10,2) NOT NULL DEFAULT 0,
    currency VARCHAR(3) NOT NULL DEFAULT 'USD',
    is_validated BOOLEAN NOT NULL DEFAULT FALSE,
    validated_at TIMESTAMPTZ,
    ticket_file_url TEXT,
    generated_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS tickets_ticket_code_idx
ON tickets (ticket_code) WHERE deleted_at IS NULL;`

const createGenerationJobsTable = `
CREATE TABLE IF NOT EXISTS generation_jobs (
    id SERIAL PRIMARY KEY,
    uid UUID NOT NULL UNIQUE,
    event_id INTEGER NOT NULL REFERENCES events(id),
    created_by BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    tickets_count INTEGER NOT NULL DEFAULT 0,
    tickets_processed INTEGER NOT NULL DEFAULT 0,
    details JSONB NOT NULL DEFAULT '{}',
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,

    CHECK (status IN ('pending', 'processing', 'completed', 'failed'))
);`

// Scan logs are an append-only audit trail and carry no soft-delete column.
const createScanLogsTable = `
CREATE TABLE IF NOT EXISTS scan_logs (
    id SERIAL PRIMARY KEY,
    ticket_id INTEGER NOT NULL REFERENCES tickets(id),
    event_id INTEGER NOT NULL REFERENCES events(id),
    operator_id BIGINT NOT NULL,
    scan_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    location VARCHAR(255),
    device_id VARCHAR(255),
    checkpoint VARCHAR(255),
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    result VARCHAR(10) NOT NULL,
    result_code VARCHAR(40) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (result IN ('valid', 'invalid'))
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS event_guests_event_idx ON event_guests (event_id);
CREATE INDEX IF NOT EXISTS tickets_event_guest_idx ON tickets (event_guest_id);
CREATE INDEX IF NOT EXISTS generation_jobs_event_status_idx ON generation_jobs (event_id, status);
CREATE INDEX IF NOT EXISTS scan_logs_ticket_time_idx ON scan_logs (ticket_id, scan_time DESC);
CREATE INDEX IF NOT EXISTS scan_logs_event_time_idx ON scan_logs (event_id, scan_time DESC);`
