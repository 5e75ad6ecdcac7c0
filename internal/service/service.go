// Package service holds the business logic between HTTP handlers and
// storage. Services depend on behaviors, not concrete singletons, so
// tests can substitute fakes.
package service

import (
	"tessera/internal/config"
	"tessera/internal/enrichment"
	"tessera/internal/fraud"
	"tessera/internal/messaging"
	"tessera/internal/repository"
)

// Roles carried in JWT claims
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated caller
type Identity struct {
	UserID int64
	Role   string
}

func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Services bundles the business layer for wiring
type Services struct {
	Jobs       *JobService
	Scans      *ScanService
	Reconciler *Reconciler
}

func NewServices(repos *repository.Repositories, queue *messaging.Queue, cfg *config.Config) *Services {
	enricher := enrichment.New(repos.Tickets)

	return &Services{
		Jobs:       NewJobService(repos.Events, repos.Jobs, enricher, queue),
		Scans:      NewScanService(repos.Events, repos.Tickets, repos.Scans, fraud.DefaultThresholds(), cfg.ScanTimeout),
		Reconciler: NewReconciler(repos.Jobs),
	}
}
