package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrAdmissionDenied means the rate governor refused the domain. Nothing was sent.
	ErrAdmissionDenied = errors.New("admission denied")
	// ErrRobotsDisallowed means robots.txt forbids the URL. Nothing was sent.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrTerminal means the fetch failed for good.
	ErrTerminal = errors.New("fetch failed")
)

// FetchError describes a fetch that ended without a usable response.
type FetchError struct {
	URL      string
	Status   int
	Attempts int
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed after %d attempt(s) (%s): %v", e.URL, e.Attempts, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s) (%s, status %d)", e.URL, e.Attempts, e.Reason, e.Status)
}

// Unwrap exposes the transport error of the last attempt, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes every FetchError match ErrTerminal.
func (e *FetchError) Is(target error) bool {
	return target == ErrTerminal
}

// Skipped reports whether err means the fetch was never attempted.
func Skipped(err error) bool {
	return errors.Is(err, ErrAdmissionDenied) || errors.Is(err, ErrRobotsDisallowed)
}
