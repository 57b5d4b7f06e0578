// Package monitoring evaluates readiness probes for the portal's backing
// services and aggregates them into a single report.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

const defaultProbeTimeout = 2 * time.Second

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates probe results. Status is the worst status observed.
type Report struct {
	Status ProbeStatus   `json:"status"`
	Checks []ProbeResult `json:"checks"`
}

// Healthy reports whether every probe came back up.
func (r Report) Healthy() bool {
	return r.Status == StatusUp
}

// Check is a named dependency probe. Run receives a context bounded by the
// prober's timeout.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// Prober runs registered checks concurrently.
type Prober struct {
	timeout time.Duration
	checks  []Check
}

// NewProber constructs a prober; a non-positive timeout uses two seconds.
func NewProber(timeout time.Duration, checks ...Check) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	p := &Prober{timeout: timeout}
	p.Register(checks...)
	return p
}

// Register appends checks. Unnamed or nil checks are ignored.
func (p *Prober) Register(checks ...Check) {
	for _, c := range checks {
		if c.Name == "" || c.Run == nil {
			continue
		}
		p.checks = append(p.checks, c)
	}
}

// Evaluate runs every check and returns results in registration order.
func (p *Prober) Evaluate(ctx context.Context) Report {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]ProbeResult, len(p.checks))
	var wg sync.WaitGroup
	for i, check := range p.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = p.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	report := Report{Status: StatusUp, Checks: results}
	for _, r := range results {
		report.Status = Worst(report.Status, r.Status)
	}
	return report
}

func (p *Prober) run(ctx context.Context, check Check) (result ProbeResult) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		result.Component = check.Name
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
	}()

	return check.Run(probeCtx)
}

// Worst returns the more severe of two statuses.
func Worst(a, b ProbeStatus) ProbeStatus {
	switch {
	case a == StatusDown || b == StatusDown:
		return StatusDown
	case a == StatusDegraded || b == StatusDegraded:
		return StatusDegraded
	default:
		return StatusUp
	}
}

// ResultFromError maps a probe error to a result. Timeouts degrade rather than fail.
func ResultFromError(err error) ProbeResult {
	if err == nil {
		return ProbeResult{Status: StatusUp}
	}
	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return ProbeResult{Status: status, Details: err.Error()}
}
