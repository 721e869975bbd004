package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatus(t *testing.T) {
	cause := errors.New("pool closed")
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"not found", NotFound("rule not found"), KindNotFound, http.StatusNotFound},
		{"validation", Validation("amount must be > 0, got %s", "0"), KindValidation, http.StatusBadRequest},
		{"dependency wrapped", fmt.Errorf("execute: %w", Dependency("ledger write failed", cause)), KindDependency, http.StatusBadGateway},
		{"conflict", Conflict("email already exists"), KindConflict, http.StatusConflict},
		{"unauthorized", Unauthorized("invalid token"), KindUnauthorized, http.StatusUnauthorized},
		{"plain", cause, "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestUnwrapAndMessage(t *testing.T) {
	cause := errors.New("pool closed")
	err := Dependency("ledger write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger write failed", PublicMessage(err))
	assert.Equal(t, "internal server error", PublicMessage(cause))
	assert.Equal(t, "amount must be > 0, got 0", Validation("amount must be > 0, got %s", "0").Message)
}
