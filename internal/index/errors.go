package index

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes attached to index write failures.
const (
	WriteErrorClassConnection = "connection"
	WriteErrorClassTimeout    = "timeout"
	WriteErrorClassContention = "contention"
	WriteErrorClassConstraint = "constraint"
	WriteErrorClassUnknown    = "unknown"
)

// A writeErrorClassifier returns a class, or "" when it has no opinion.
type writeErrorClassifier func(err error, msg string) string

// Typed checks run before message matching, which only catches driver errors
// that lost their type on the way up.
var writeErrorClassifiers = []writeErrorClassifier{
	classifyTimeout,
	classifyPostgres,
	classifyNetwork,
	messageClass(WriteErrorClassConnection, "connection refused", "broken pipe", "no such host"),
	messageClass(WriteErrorClassTimeout, "timeout", "deadline exceeded"),
	messageClass(WriteErrorClassContention, "sqlite_busy", "database is locked"),
	messageClass(WriteErrorClassConstraint, "duplicate key", "constraint failed",
		"violates foreign key constraint", "violates unique constraint", "violates check constraint"),
}

// ClassifyWriteError maps an index write error to one of the WriteErrorClass
// constants.
func ClassifyWriteError(err error) string {
	if err == nil {
		return WriteErrorClassUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, classify := range writeErrorClassifiers {
		if class := classify(err, msg); class != "" {
			return class
		}
	}
	return WriteErrorClassUnknown
}

func classifyTimeout(err error, _ string) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return WriteErrorClassTimeout
	}
	return ""
}

// classifyPostgres maps SQLSTATE classes.
func classifyPostgres(err error, _ string) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	code := pgErr.Code
	switch {
	case strings.HasPrefix(code, "08"):
		return WriteErrorClassConnection
	case code == "40001", code == "40P01", code == "55P03":
		return WriteErrorClassContention
	case strings.HasPrefix(code, "23"):
		return WriteErrorClassConstraint
	case code == "57014":
		return WriteErrorClassTimeout
	}
	return ""
}

func classifyNetwork(err error, _ string) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return WriteErrorClassConnection
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return WriteErrorClassConnection
		}
	}
	return ""
}

func messageClass(class string, needles ...string) writeErrorClassifier {
	return func(_ error, msg string) string {
		for _, needle := range needles {
			if strings.Contains(msg, needle) {
				return class
			}
		}
		return ""
	}
}
