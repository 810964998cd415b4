package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKindSeesThroughWrapping(t *testing.T) {
	base := NotFound("report %s not found", "abc")
	wrapped := fmt.Errorf("loading report: %w", base)

	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindValidation))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
}

func TestExternalServiceKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExternalService(cause, "gateway call failed")

	assert.True(t, IsKind(err, KindExternalService))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{InvalidState("x"), http.StatusConflict},
		{AlreadyPaid("x"), http.StatusConflict},
		{ConcurrencyConflict("x"), http.StatusConflict},
		{ExternalService(errors.New("x"), "x"), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err))
	}
}
