// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"time"
)

// PingChecker adapts a dependency ping function into a Checker.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker creates a checker around a dependency ping.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "reachable",
	}
}

// FileChecker checks if a file exists and is readable
type FileChecker struct {
	name string
	path string
}

// NewFileChecker creates a checker for file existence
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{
		name: name,
		path: path,
	}
}

func (c *FileChecker) Name() string {
	return c.name
}

func (c *FileChecker) Check(ctx context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (optional)",
		}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusUnhealthy,
				Error:   "file not found",
				Message: c.path,
			}
		}
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}

	if info.IsDir() {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "expected file, got directory",
		}
	}

	if info.Size() == 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "file is empty",
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "file exists and readable",
	}
}

// PulseChecker verifies a worker loop has ticked recently. The loop records a
// pulse at the end of each pass; a stale pulse means the loop is wedged.
type PulseChecker struct {
	name     string
	maxAge   time.Duration
	getPulse func() (time.Time, string)
}

// NewPulseChecker creates a checker for loop liveness. getPulse returns the
// time of the last completed pass and the last error message, if any.
func NewPulseChecker(name string, maxAge time.Duration, getPulse func() (time.Time, string)) *PulseChecker {
	return &PulseChecker{
		name:     name,
		maxAge:   maxAge,
		getPulse: getPulse,
	}
}

func (c *PulseChecker) Name() string {
	return c.name
}

func (c *PulseChecker) Check(ctx context.Context) CheckResult {
	lastPulse, lastError := c.getPulse()

	if lastPulse.IsZero() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no completed pass yet",
		}
	}

	if age := time.Since(lastPulse); age > c.maxAge {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "loop stalled",
			Message: age.Truncate(time.Second).String() + " since last pass",
		}
	}

	if lastError != "" {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   lastError,
			Message: "last pass failed",
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "loop running",
	}
}
