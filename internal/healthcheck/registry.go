package healthcheck

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/telemetry"
)

// Registry owns the checks and their latest results.
type Registry struct {
	timeout   time.Duration
	eventBus  events.EventBus
	telemetry *telemetry.Telemetry
	logger    logger.Logger

	mu      sync.RWMutex
	checks  []Check
	results map[string]Result
}

func NewRegistry(timeout time.Duration, eventBus events.EventBus, tel *telemetry.Telemetry, log logger.Logger) *Registry {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &Registry{
		timeout:   timeout,
		eventBus:  eventBus,
		telemetry: tel,
		logger:    log,
		results:   make(map[string]Result),
	}
}

func (r *Registry) Register(checks ...Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, checks...)
}

func (r *Registry) Checks() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Check(nil), r.checks...)
}

// RunAll runs every check concurrently and stores the results.
func (r *Registry) RunAll(ctx context.Context) []Result {
	checks := r.Checks()
	results := make([]Result, len(checks))

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = r.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	r.mu.Lock()
	for _, res := range results {
		r.results[res.CheckID] = res
	}
	r.mu.Unlock()

	return results
}

// Results returns the latest result of every check that has run, by group then name.
func (r *Registry) Results() []Result {
	r.mu.RLock()
	out := make([]Result, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) run(ctx context.Context, check Check) Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := r.telemetry.StartSpan(ctx, "healthcheck.run")
	span.SetAttributes(telemetry.HealthCheckAttribute(check.ID()))
	res := check.Run(ctx)
	span.End()

	metrics.RecordHealthCheck(check.Name(), check.Group(), res.Status.gaugeValue())

	if res.Status == StatusError {
		r.logger.Warn("Health check failed", "check", check.Name(), "group", check.Group(), "message", res.Message)
		r.publishFailure(ctx, res)
	}
	return res
}

func (r *Registry) publishFailure(ctx context.Context, res Result) {
	if r.eventBus == nil {
		return
	}
	event := events.NewEventBuilder(events.HealthCheckFailed).
		WithAggregateID(res.CheckID).
		WithAggregateType("healthcheck").
		WithPayload("name", res.Name).
		WithPayload("group", res.Group).
		WithPayload("message", res.Message).
		Build()
	if err := r.eventBus.Publish(ctx, event); err != nil {
		r.logger.Error("Failed to publish health check event", "check", res.Name, "error", err)
	}
}
