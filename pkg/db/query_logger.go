package db

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryWriter forwards GORM's slow-query and error lines to the service
// logger as warnings.
type slowQueryWriter struct {
	ctx  context.Context
	logg *logger.Logger
}

func (w slowQueryWriter) Printf(format string, args ...any) {
	w.logg.Warn(w.logg.WithField(w.ctx, "sql_trace", fmt.Sprintf(format, args...)), "db.query.slow_or_failed")
}

// queryLogger stays silent without a service logger or a positive threshold.
func queryLogger(ctx context.Context, logg *logger.Logger, threshold time.Duration) gormlogger.Interface {
	if logg == nil || threshold <= 0 {
		return gormlogger.Discard
	}
	return gormlogger.New(slowQueryWriter{ctx: ctx, logg: logg}, gormlogger.Config{
		SlowThreshold:             threshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}
