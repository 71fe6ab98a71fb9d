package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	connectAttempts = 5
	connectDelay    = 5 * time.Second
)

// Connect opens an instrumented database handle and waits until the database
// accepts connections, retrying a bounded number of times so the service can
// start while the database is still booting. Callers own the returned handle.
func Connect(ctx context.Context, driverName, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, err
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	); err != nil {
		_ = db.Close()
		return nil, err
	}

	var pingErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			return db, nil
		}
		if attempt < connectAttempts {
			logger.Warn("database not ready, retrying", "attempt", attempt, "error", pingErr)
			select {
			case <-time.After(connectDelay):
			case <-ctx.Done():
				_ = db.Close()
				return nil, ctx.Err()
			}
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("connect to database after %d attempts: %w", connectAttempts, pingErr)
}
