package database

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("read: connection reset by peer")))
	assert.True(t, IsRetryable(errors.New("write: broken pipe")))
	assert.True(t, IsRetryable(errors.New("i/o timeout")))
	assert.True(t, IsRetryable(driver.ErrBadConn))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New(`pq: duplicate key value violates unique constraint "tickets_code_unique"`)))
}

func TestHealthCheckHealthy(t *testing.T) {
	assert.True(t, HealthCheck{Status: "healthy"}.Healthy())
	assert.False(t, HealthCheck{Status: "unhealthy", Error: "dial tcp: connection refused"}.Healthy())
	assert.False(t, HealthCheck{}.Healthy())
}
