package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tessera/internal/models"
)

func TestAllowedTransitions(t *testing.T) {
	assert.True(t, allowedTransition(models.GuestStatusPending, models.GuestStatusConfirmed))
	assert.True(t, allowedTransition(models.GuestStatusPending, models.GuestStatusCancelled))
	assert.True(t, allowedTransition(models.GuestStatusConfirmed, models.GuestStatusCancelled))

	assert.False(t, allowedTransition(models.GuestStatusConfirmed, models.GuestStatusPending))
	assert.False(t, allowedTransition(models.GuestStatusCancelled, models.GuestStatusPending))
	assert.False(t, allowedTransition(models.GuestStatusCancelled, models.GuestStatusConfirmed))
}
