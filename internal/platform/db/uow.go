package db

import (
	"bytes"
	"context"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/platform/apperror"
)

// UnitOfWorkConfig configures the request-scoped transaction middleware.
type UnitOfWorkConfig struct {
	// Skipper bypasses the transaction entirely (health, metrics).
	Skipper func(c echo.Context) bool
	// Serializable selects SERIALIZABLE isolation for a request.
	// Other requests run at READ COMMITTED.
	Serializable func(c echo.Context) bool
}

// UnitOfWork begins one transaction per request and stores it in the request
// context. The transaction commits once when the handler succeeds with a
// status below 400 and rolls back once otherwise. The response is buffered so
// a failed commit can still be reported to the client. AfterCommit callbacks
// run after the response is flushed, and only when the commit succeeded.
func UnitOfWork(b TxBeginner, logger zerolog.Logger, cfg UnitOfWorkConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
			if cfg.Serializable != nil && cfg.Serializable(c) {
				opts.IsoLevel = pgx.Serializable
			}

			req := c.Request()
			ctx := req.Context()
			tx, err := b.BeginTx(ctx, opts)
			if err != nil {
				logger.Error().Err(err).Msg("begin unit of work")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			// Rollback after a successful commit is a no-op.
			defer tx.Rollback(context.WithoutCancel(ctx))

			txCtx, hooks := withCommitHooks(WithTx(ctx, tx))
			c.SetRequest(req.WithContext(txCtx))

			res := c.Response()
			original := res.Writer
			buf := &bufferedWriter{header: original.Header()}
			res.Writer = buf
			defer func() { res.Writer = original }()

			herr := next(c)

			if herr != nil || res.Status >= http.StatusBadRequest {
				if rbErr := tx.Rollback(ctx); rbErr != nil {
					logger.Warn().Err(rbErr).Msg("rollback unit of work")
				}
				res.Writer = original
				buf.flushTo(original)
				return herr
			}

			if err := tx.Commit(ctx); err != nil {
				res.Writer = original
				res.Committed = false
				res.Status = 0
				res.Size = 0
				if IsSerializationFailure(err) || IsUniqueViolation(err) {
					return apperror.Conflict("request conflicted with a concurrent update, please retry").WithCause(err)
				}
				return apperror.Internal("commit unit of work", err)
			}

			res.Writer = original
			buf.flushTo(original)
			hooks.run(context.WithoutCancel(ctx))
			return nil
		}
	}
}

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *bufferedWriter) flushTo(dst http.ResponseWriter) {
	if w.status == 0 {
		return
	}
	dst.WriteHeader(w.status)
	_, _ = dst.Write(w.body.Bytes())
}
