package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	fallback DBPinger
}

// New creates a Service. fallback is the in-process standby store behind the
// failover wrapper; it can be nil when the deployment runs without one.
func New(db, fallback DBPinger) *Service {
	return &Service{db: db, fallback: fallback}
}

// Check runs health checks against all components. A failing primary store
// degrades the report rather than failing it: the governor keeps metering
// into the fallback while the primary is down.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.fallback != nil {
		if err := s.fallback.Ping(ctx); err != nil {
			checks["fallback_store"] = CheckError
		} else {
			checks["fallback_store"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
