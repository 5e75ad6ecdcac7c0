package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQRPayload(t *testing.T) {
	payload, err := ParseQRPayload(`{"id": 100, "eventId": 7, "timestamp": 1780000000}`)

	require.NoError(t, err)
	assert.Equal(t, int64(100), payload.ID)
	assert.Equal(t, int64(7), payload.EventID)
	assert.Equal(t, int64(1780000000), payload.Timestamp)
}

func TestParseQRPayloadMalformed(t *testing.T) {
	_, err := ParseQRPayload(`TCK-100`)
	assert.Error(t, err)
}

func TestParseQRPayloadMissingFields(t *testing.T) {
	_, err := ParseQRPayload(`{"timestamp": 1780000000}`)
	assert.Error(t, err)

	_, err = ParseQRPayload(`{"id": 100, "timestamp": 1780000000}`)
	assert.Error(t, err)
}

func TestJobDetailsScanRoundTrip(t *testing.T) {
	details := JobDetails{
		TicketIDs: []int64{1, 2, 3},
		Warnings: []EnrichDiagnostic{
			{TicketID: 2, Reason: "missing_references", Missing: []string{"guest"}},
		},
	}

	value, err := details.Value()
	require.NoError(t, err)

	var decoded JobDetails
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, details.TicketIDs, decoded.TicketIDs)
	require.Len(t, decoded.Warnings, 1)
	assert.Equal(t, "missing_references", decoded.Warnings[0].Reason)
}

func TestJobDetailsScanNil(t *testing.T) {
	var details JobDetails
	require.NoError(t, details.Scan(nil))
	assert.Empty(t, details.TicketIDs)
}

func TestIsTerminalJobStatus(t *testing.T) {
	assert.True(t, IsTerminalJobStatus(JobStatusCompleted))
	assert.True(t, IsTerminalJobStatus(JobStatusFailed))
	assert.False(t, IsTerminalJobStatus(JobStatusPending))
	assert.False(t, IsTerminalJobStatus(JobStatusProcessing))
}
