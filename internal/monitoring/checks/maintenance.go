package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/blotter/internal/app/maintenance"
	"github.com/charlesng35/blotter/internal/monitoring"
)

// JobReporter exposes background job outcomes.
type JobReporter interface {
	Status() []maintenance.JobStatus
}

// Maintenance reports down when a cleanup job keeps failing and degraded
// when its last run is older than maxAge. A zero maxAge skips the staleness check.
func Maintenance(jobs JobReporter, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if now == nil {
		now = time.Now
	}
	return monitoring.Check{Name: "maintenance", Run: func(context.Context) monitoring.ProbeResult {
		if jobs == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs"}
		}

		status := monitoring.StatusUp
		var notes []string
		for _, job := range jobs.Status() {
			if job.ConsecutiveFailures > 0 {
				status = monitoring.Worst(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": "+job.LastError)
				continue
			}
			if maxAge > 0 && now().Sub(job.LastRunAt) > maxAge {
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": last run "+job.LastRunAt.Format(time.RFC3339))
			}
		}
		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; ")}
	}}
}
