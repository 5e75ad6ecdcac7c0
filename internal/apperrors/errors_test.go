package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindBusinessRule.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, KindTransient.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindTransient, CodeQueueError, "publish failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeQueueError, CodeOf(err))
	assert.True(t, IsKind(err, KindTransient))
	assert.True(t, Retryable(err))
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := New(KindNotFound, CodeTicketNotFound, "ticket not found")
	outer := fmt.Errorf("scan failed: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(outer))
	assert.Equal(t, CodeTicketNotFound, CodeOf(outer))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("something broke")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "INTERNAL_ERROR", CodeOf(err))
	assert.False(t, Retryable(err))
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := New(KindConflict, CodeTicketAlreadyUsed, "already used")
	detailed := base.WithDetails(map[string]any{"validated_at": "2026-06-15T14:00:00Z"})

	assert.Nil(t, base.Details)
	assert.NotNil(t, detailed.Details)
	assert.Equal(t, base.Code, detailed.Code)
}
