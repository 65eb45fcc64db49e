package service

import (
	"errors"
	"fmt"
)

// ErrNoCandidate matches any *NoCandidateError through errors.Is.
var ErrNoCandidate = errors.New("no candidate technicians")

type NoCandidateError struct {
	JobID   string
	JobKind string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no candidate technicians for %s %s", e.JobKind, e.JobID)
}

func (e *NoCandidateError) Is(target error) bool {
	return target == ErrNoCandidate
}

