// Package retry classifies fetch attempts into success, retryable or terminal
// outcomes and computes how long to wait before the next attempt.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/jitter"
)

// Outcome is the verdict for one attempt.
type Outcome int

// Outcomes returned by Classify.
const (
	Success Outcome = iota
	Retryable
	Terminal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Reasons attached to decisions; they double as metric labels.
const (
	ReasonOK          = "ok"
	ReasonForbidden   = "forbidden"
	ReasonRateLimited = "rate_limited"
	ReasonUnavailable = "unavailable"
	ReasonStatus      = "status"
	ReasonTimeout     = "timeout"
	ReasonConnection  = "connection"
	ReasonTransport   = "transport"
	ReasonCanceled    = "canceled"
)

// Decision is the tagged result of classifying an attempt.
type Decision struct {
	Outcome Outcome
	// Delay to wait before the next attempt when Outcome is Retryable.
	Delay time.Duration
	// Stealth asks the caller to clear its session and rotate identity.
	Stealth bool
	Reason  string
}

// DelayConfig holds the wait ranges per failure class. The zero value means no waiting.
type DelayConfig struct {
	ForbiddenMin   time.Duration
	ForbiddenMax   time.Duration
	RateLimitBase  time.Duration
	RateLimitStep  time.Duration
	UnavailableMin time.Duration
	UnavailableMax time.Duration
	TimeoutMin     time.Duration
	TimeoutMax     time.Duration
	ConnectionMin  time.Duration
	ConnectionMax  time.Duration
	TransportMin   time.Duration
	TransportMax   time.Duration
}

// DefaultDelays returns the production wait ranges.
func DefaultDelays() DelayConfig {
	return DelayConfig{
		ForbiddenMin:   10 * time.Second,
		ForbiddenMax:   20 * time.Second,
		RateLimitBase:  15 * time.Second,
		RateLimitStep:  5 * time.Second,
		UnavailableMin: 5 * time.Second,
		UnavailableMax: 15 * time.Second,
		TimeoutMin:     3 * time.Second,
		TimeoutMax:     10 * time.Second,
		ConnectionMin:  5 * time.Second,
		ConnectionMax:  15 * time.Second,
		TransportMin:   3 * time.Second,
		TransportMax:   12 * time.Second,
	}
}

// DefaultMaxAttempts bounds the attempts of one fetch.
const DefaultMaxAttempts = 3

// Config configures an Engine.
type Config struct {
	MaxAttempts int
	Delays      DelayConfig
}

// DefaultConfig returns MaxAttempts=3 with production delays.
func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, Delays: DefaultDelays()}
}

// Engine is stateless apart from its random source and is safe for concurrent use.
type Engine struct {
	cfg Config
	rnd jitter.Source
}

// New builds an Engine. A non-positive MaxAttempts falls back to DefaultMaxAttempts.
func New(cfg Config, rnd jitter.Source) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{cfg: cfg, rnd: jitter.Or(rnd)}
}

// MaxAttempts returns the attempt bound.
func (e *Engine) MaxAttempts() int {
	return e.cfg.MaxAttempts
}

// Exhausted reports whether attempts (the number already made) reached the bound.
func (e *Engine) Exhausted(attempts int) bool {
	return attempts >= e.cfg.MaxAttempts
}

// Classify maps a status code or transport error of the zero-based attempt to a Decision.
// err takes precedence over status.
func (e *Engine) Classify(status int, err error, attempt int) Decision {
	if err != nil {
		return e.classifyError(err)
	}
	d := e.cfg.Delays
	switch {
	case status >= 200 && status < 300:
		return Decision{Outcome: Success, Reason: ReasonOK}
	case status == http.StatusForbidden:
		return Decision{
			Outcome: Retryable,
			Delay:   jitter.Duration(e.rnd, d.ForbiddenMin, d.ForbiddenMax),
			Stealth: true,
			Reason:  ReasonForbidden,
		}
	case status == http.StatusTooManyRequests:
		return Decision{
			Outcome: Retryable,
			Delay:   d.RateLimitBase + time.Duration(attempt)*d.RateLimitStep,
			Reason:  ReasonRateLimited,
		}
	case status == http.StatusServiceUnavailable:
		return Decision{
			Outcome: Retryable,
			Delay:   jitter.Duration(e.rnd, d.UnavailableMin, d.UnavailableMax),
			Reason:  ReasonUnavailable,
		}
	default:
		return Decision{Outcome: Terminal, Reason: ReasonStatus}
	}
}

func (e *Engine) classifyError(err error) Decision {
	d := e.cfg.Delays
	if errors.Is(err, context.Canceled) {
		return Decision{Outcome: Terminal, Reason: ReasonCanceled}
	}
	if isTimeout(err) {
		return Decision{Outcome: Retryable, Delay: jitter.Duration(e.rnd, d.TimeoutMin, d.TimeoutMax), Reason: ReasonTimeout}
	}
	if isConnection(err) {
		return Decision{Outcome: Retryable, Delay: jitter.Duration(e.rnd, d.ConnectionMin, d.ConnectionMax), Reason: ReasonConnection}
	}
	return Decision{Outcome: Retryable, Delay: jitter.Duration(e.rnd, d.TransportMin, d.TransportMax), Reason: ReasonTransport}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnection(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
