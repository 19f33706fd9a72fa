package orchestrator

import "fmt"

// HealthLevel is the aggregate health verdict.
type HealthLevel string

const (
	HealthHealthy   HealthLevel = "HEALTHY"
	HealthDegraded  HealthLevel = "DEGRADED"
	HealthUnhealthy HealthLevel = "UNHEALTHY"
)

// HealthStatus carries the verdict plus one line per contributing issue.
type HealthStatus struct {
	Level  HealthLevel `json:"level"`
	Issues []string    `json:"issues,omitempty"`
}

// laneSaturationRatio is the queue fill level above which a lane is reported
// as a degradation issue.
const laneSaturationRatio = 0.8

func computeHealth(depths []int, capacity int, open map[string]BreakerState, closed bool) HealthStatus {
	if closed {
		return HealthStatus{Level: HealthUnhealthy, Issues: []string{"orchestrator is closed"}}
	}

	var issues []string
	saturated := 0
	for i, d := range depths {
		if float64(d) >= laneSaturationRatio*float64(capacity) {
			saturated++
			issues = append(issues, fmt.Sprintf("lane %d queue at %d/%d", i, d, capacity))
		}
	}
	for id, st := range open {
		issues = append(issues, fmt.Sprintf("breaker %s for machine %s", st, id))
	}

	switch {
	case saturated == len(depths) && len(depths) > 0:
		return HealthStatus{Level: HealthUnhealthy, Issues: issues}
	case len(issues) > 0:
		return HealthStatus{Level: HealthDegraded, Issues: issues}
	default:
		return HealthStatus{Level: HealthHealthy}
	}
}
