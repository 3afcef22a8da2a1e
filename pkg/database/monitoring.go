package database

import (
	"errors"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
	"gorm.io/gorm"
)

// SlowQueryThreshold defines the default threshold for slow queries
const SlowQueryThreshold = 100 * time.Millisecond

const startedAtKey = "monitor:started_at"

// Monitor records statement latency, slow statements and errors for every
// gorm operation.
type Monitor struct {
	logger    logger.Logger
	threshold time.Duration
}

// NewMonitor registers the monitoring callbacks on db.
func NewMonitor(db *DB, log logger.Logger, threshold time.Duration) (*Monitor, error) {
	if threshold <= 0 {
		threshold = SlowQueryThreshold
	}
	m := &Monitor{logger: log, threshold: threshold}
	if err := m.register(db.DB); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Monitor) register(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		operation string
		before    func(name string, fn func(*gorm.DB)) error
		after     func(name string, fn func(*gorm.DB)) error
	}{
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
	}

	for _, h := range hooks {
		operation := h.operation
		if err := h.before("monitor:before_"+operation, func(db *gorm.DB) {
			db.InstanceSet(startedAtKey, time.Now())
		}); err != nil {
			return err
		}
		if err := h.after("monitor:after_"+operation, func(db *gorm.DB) {
			m.record(operation, db)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) record(operation string, db *gorm.DB) {
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		metrics.DatabaseErrorsTotal.WithLabelValues(operation).Inc()
		m.logger.Error("Database statement failed",
			"operation", operation,
			"error", db.Error,
		)
	}

	started, ok := db.InstanceGet(startedAtKey)
	if !ok {
		return
	}
	duration := time.Since(started.(time.Time))
	metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())

	if duration > m.threshold {
		metrics.DatabaseSlowQueries.WithLabelValues(operation).Inc()
		m.logger.Warn("Slow query detected",
			"operation", operation,
			"sql", db.Statement.SQL.String(),
			"duration", duration,
			"threshold", m.threshold,
		)
	}
}
