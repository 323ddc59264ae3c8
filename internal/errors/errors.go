// Package errors provides the typed task errors used across themesmith, a
// console error handler that keeps failures scoped to a single task run, and
// a collector for reporting every failure of a one-shot build.
package errors

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// TaskFailure records one failed task run.
type TaskFailure struct {
	Task string
	Err  error
}

// ErrorCollector collects task failures from concurrent runs
type ErrorCollector struct {
	failures []TaskFailure
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make([]TaskFailure, 0),
	}
}

// Add records a failed task. A nil error is ignored.
func (ec *ErrorCollector) Add(task string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = append(ec.failures, TaskFailure{Task: task, Err: err})
}

// Failures returns the collected failures ordered by task name
func (ec *ErrorCollector) Failures() []TaskFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]TaskFailure, len(ec.failures))
	copy(result, ec.failures)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Task < result[j].Task })
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}

// Err joins every failure into one error, or returns nil.
func (ec *ErrorCollector) Err() error {
	failures := ec.Failures()
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Summary lists the failed task names, e.g. "jade, less".
func (ec *ErrorCollector) Summary() string {
	failures := ec.Failures()
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Task)
	}
	return strings.Join(names, ", ")
}
