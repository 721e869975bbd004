package util

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pennywise/pkg/circuitbreaker"
)

// ClassifyError maps a dependency error to a short, low-cardinality reason
// used in metrics labels and audit metadata.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, pgx.ErrNoRows):
		return "not_found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return "duplicate_key"
		}
		return "db_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "sqlite_busy"):
		return "db_busy"
	case strings.Contains(msg, "connection"):
		return "db_connection_error"
	}
	return "unknown_error"
}
