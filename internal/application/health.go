package application

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthReport is the outcome of running every registered check.
type HealthReport struct {
	Healthy bool
	// Failures maps check name to error message for failing checks.
	Failures map[string]string
	Checked  []string
}

// HealthService runs named dependency checks concurrently.
type HealthService struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthService creates a HealthService. Each check gets at most timeout.
func NewHealthService(timeout time.Duration) *HealthService {
	return &HealthService{checks: make(map[string]HealthCheck), timeout: timeout}
}

// Register adds a check under name. Not safe to call concurrently with Check.
func (s *HealthService) Register(name string, check HealthCheck) {
	s.checks[name] = check
}

// Check runs every check and reports the failures.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Healthy: true, Failures: map[string]string{}, Checked: []string{}}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range s.checks {
		report.Checked = append(report.Checked, name)

		wg.Add(1)
		go func() {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			if err := check(cctx); err != nil {
				mu.Lock()
				report.Healthy = false
				report.Failures[name] = err.Error()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Strings(report.Checked)
	return report
}
