package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsByCode(t *testing.T) {
	err := ErrRulesetNotFound.WithMessage("规章 42 不存在")
	assert.True(t, Is(err, ErrRulesetNotFound))
	assert.False(t, Is(err, ErrNotFound))

	wrapped := fmt.Errorf("update: %w", err)
	assert.True(t, Is(wrapped, ErrRulesetNotFound))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	biz := FromError(fmt.Errorf("wrap: %w", ErrConflict))
	assert.Equal(t, "CONFLICT", biz.Code)
	assert.Equal(t, http.StatusConflict, biz.HTTPStatus)

	internal := FromError(fmt.Errorf("disk full"))
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)
	assert.Contains(t, internal.Error(), "disk full")
}

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	e := ErrInvalidRequest.WithDetail("field", "title")
	assert.Equal(t, "title", e.Details["field"])
	assert.Nil(t, ErrInvalidRequest.Details)
}

func TestWrap_KeepsCodeAndCause(t *testing.T) {
	cause := fmt.Errorf("stale row")
	err := Wrap(ErrVersionConflict, cause)

	assert.True(t, Is(err, ErrVersionConflict))
	assert.True(t, Is(err, cause))
	assert.Equal(t, http.StatusConflict, FromError(err).HTTPStatus)
	assert.Contains(t, err.Error(), "stale row")
	assert.Nil(t, ErrVersionConflict.Unwrap())
}
