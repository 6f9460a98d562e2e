package checksum

import (
	"errors"
	"fmt"
)

// UpdateStatus is the per-algorithm result of FixChecksums.
type UpdateStatus int

const (
	StatusNone UpdateStatus = iota
	StatusCreated
	StatusUpdated
	StatusError
)

func (s UpdateStatus) String() string {
	switch s {
	case StatusNone:
		return "unchanged"
	case StatusCreated:
		return "created"
	case StatusUpdated:
		return "updated"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("UpdateStatus(%d)", int(s))
	}
}

// UpdateStatusList collects the outcome of a fix across algorithms.
type UpdateStatusList struct {
	order    []Algorithm
	statuses map[Algorithm]UpdateStatus
	errs     map[Algorithm]error
}

func newUpdateStatusList(algs []Algorithm) *UpdateStatusList {
	l := &UpdateStatusList{
		statuses: make(map[Algorithm]UpdateStatus, len(algs)),
		errs:     make(map[Algorithm]error),
	}
	for _, alg := range algs {
		l.set(alg, StatusNone)
	}
	return l
}

func (l *UpdateStatusList) set(alg Algorithm, status UpdateStatus) {
	if _, ok := l.statuses[alg]; !ok {
		l.order = append(l.order, alg)
	}
	l.statuses[alg] = status
}

func (l *UpdateStatusList) setError(alg Algorithm, err error) {
	l.set(alg, StatusError)
	l.errs[alg] = err
}

// Algorithms returns the algorithms in the order they were processed.
func (l *UpdateStatusList) Algorithms() []Algorithm {
	return append([]Algorithm(nil), l.order...)
}

// Status returns the status recorded for alg.
func (l *UpdateStatusList) Status(alg Algorithm) UpdateStatus {
	return l.statuses[alg]
}

// Error returns the failure recorded for alg, if any.
func (l *UpdateStatusList) Error(alg Algorithm) error {
	return l.errs[alg]
}

// Total summarises the list: error beats updated beats created beats none.
func (l *UpdateStatusList) Total() UpdateStatus {
	total := StatusNone
	for _, alg := range l.order {
		switch s := l.statuses[alg]; {
		case s == StatusError:
			return StatusError
		case s == StatusUpdated:
			total = StatusUpdated
		case s == StatusCreated && total == StatusNone:
			total = StatusCreated
		}
	}
	return total
}

// Changed reports whether any side-file was written.
func (l *UpdateStatusList) Changed() bool {
	for _, s := range l.statuses {
		if s == StatusCreated || s == StatusUpdated {
			return true
		}
	}
	return false
}

// Err joins all per-algorithm failures.
func (l *UpdateStatusList) Err() error {
	var errs []error
	for _, alg := range l.order {
		if err := l.errs[alg]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", alg, err))
		}
	}
	return errors.Join(errs...)
}
