package workflow

import (
	"math"
	"time"
)

// SLALevel classifies how far into its SLA window a work-item is.
type SLALevel string

const (
	SLANone     SLALevel = "none"
	SLAOk       SLALevel = "ok"
	SLAWarning  SLALevel = "warning"
	SLABreached SLALevel = "breached"
)

// SLAStatus is the result of evaluating elapsed dwell time against a
// status's SLA config.
type SLAStatus struct {
	Level   SLALevel `json:"level"`
	Percent float64  `json:"percent"`
}

// EvaluateSLA is a pure function of elapsed time and SLA config.
//
// It returns SLANone when no limit is configured, when no time has elapsed,
// or when the computed percentage is not finite. Otherwise the level is
// breached at >= 100% of MaxHours and warning at >= the configured warning
// threshold (default 80%).
func EvaluateSLA(elapsed time.Duration, cfg SLAConfig) SLAStatus {
	if cfg.MaxHours == nil || elapsed <= 0 {
		return SLAStatus{Level: SLANone}
	}

	percent := (elapsed.Hours() / *cfg.MaxHours) * 100
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return SLAStatus{Level: SLANone}
	}

	threshold := cfg.WarningThresholdPercent
	if threshold <= 0 {
		threshold = DefaultWarningThresholdPercent
	}

	switch {
	case percent >= 100:
		return SLAStatus{Level: SLABreached, Percent: percent}
	case percent >= float64(threshold):
		return SLAStatus{Level: SLAWarning, Percent: percent}
	default:
		return SLAStatus{Level: SLAOk, Percent: percent}
	}
}
