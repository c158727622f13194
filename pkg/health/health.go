package health

import (
	"context"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	status := StatusHealthy

	for _, checker := range r.checkers {
		result := CheckResult{Status: StatusHealthy}
		if err := checker.Check(ctx); err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			status = StatusUnhealthy
		}
		results[checker.Name()] = result
	}

	return Health{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

// Pinger covers any storage handle that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type StorageChecker struct {
	name   string
	pinger Pinger
}

func NewStorageChecker(name string, pinger Pinger) *StorageChecker {
	return &StorageChecker{name: name, pinger: pinger}
}

func (c *StorageChecker) Name() string {
	return c.name
}

func (c *StorageChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.pinger.Ping(ctx)
}
