package util

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pennywise/pkg/circuitbreaker"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-123", "secret")
	require.NoError(t, err)

	userID, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc": "abc",
		"bearer abc": "abc",
		"Basic abc":  "",
		"abc":        "",
		"":           "",
	}
	for header, want := range cases {
		t.Run(header, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			assert.Equal(t, want, ExtractToken(req))
		})
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret!", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "", ClassifyError(nil))
	assert.Equal(t, "circuit_open", ClassifyError(fmt.Errorf("ledger: %w", circuitbreaker.ErrCircuitBreakerOpen)))
	assert.Equal(t, "timeout", ClassifyError(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", ClassifyError(context.Canceled))
	assert.Equal(t, "db_busy", ClassifyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.Equal(t, "db_connection_error", ClassifyError(errors.New("connection refused")))
	assert.Equal(t, "unknown_error", ClassifyError(errors.New("boom")))
}

func TestClaimKey(t *testing.T) {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fmt.Sprintf("recurring:claim:r1:%d", due.UnixMicro()), ClaimKey("r1", due))
	// same instant in another zone maps to the same key
	assert.Equal(t, ClaimKey("r1", due), ClaimKey("r1", due.In(time.FixedZone("X", 3600))))
}
