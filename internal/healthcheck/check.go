// Package healthcheck runs configuration checks against the running site and
// keeps their latest results.
package healthcheck

import (
	"context"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
)

// gaugeValue is the value exported on the health_check_status gauge.
func (s Status) gaugeValue() float64 {
	switch s {
	case StatusSuccess:
		return 1
	case StatusError:
		return -1
	default:
		return 0
	}
}

type Check interface {
	ID() string
	Name() string
	Description() string
	Group() string
	Run(ctx context.Context) Result
}

type Result struct {
	CheckID      string    `json:"checkId"`
	Name         string    `json:"name"`
	Group        string    `json:"group"`
	Status       Status    `json:"status"`
	Message      string    `json:"message"`
	ReadMoreLink string    `json:"readMoreLink,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}
