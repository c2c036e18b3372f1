package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// Classify maps a driver, network or context error onto the probe error
// taxonomy. ctx is the caller's context: its cancellation wins over whatever
// the driver reported. Already classified errors pass through unchanged.
func Classify(ctx context.Context, err error, detail string) error {
	if err == nil {
		return nil
	}
	var pe *model.Error
	if errors.As(err, &pe) {
		return err
	}

	kind := classifyKind(ctx, err)
	return model.NewError(kind, "", "", detail, err)
}

func classifyKind(ctx context.Context, err error) model.ErrorKind {
	switch ctx.Err() {
	case context.Canceled:
		return model.KindCanceled
	case context.DeadlineExceeded:
		return model.KindQueryTimeout
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqKind(pqErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.KindQueryTimeout
	case errors.Is(err, context.Canceled):
		return model.KindCanceled
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return model.KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return model.KindQueryTimeout
		}
		return model.KindConnection
	}
	return model.KindQueryExecution
}

// pqKind maps SQLSTATE codes. 57014 is query_canceled, raised when
// statement_timeout or lock_timeout style limits fire.
func pqKind(err *pq.Error) model.ErrorKind {
	switch err.Code {
	case "57014", "55P03":
		return model.KindQueryTimeout
	case "57P01", "57P02", "57P03", "53300":
		return model.KindConnection
	}
	switch err.Code.Class() {
	case "08", "28":
		return model.KindConnection
	}
	return model.KindQueryExecution
}
