package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/jitter"
	"github.com/JakeFAU/scholarship-finder/internal/metrics"
)

// ActivityTier scales the pacing delay once more than Above requests were
// admitted inside the governor's history window.
type ActivityTier struct {
	Above  int
	Factor float64
}

// PacingConfig shapes the delay taken before the first attempt of every fetch.
type PacingConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// Floor is the smallest delay ever taken once pacing is enabled.
	Floor time.Duration
	// Tiers must be ordered from the busiest to the quietest; the first match wins.
	Tiers []ActivityTier

	ThinkingChance float64
	ThinkingMin    time.Duration
	ThinkingMax    time.Duration

	// Hours in [BusyStart, BusyEnd] use BusyFactor; hours >= NightStart or <= NightEnd use NightFactor.
	BusyStart   int
	BusyEnd     int
	BusyFactor  float64
	NightStart  int
	NightEnd    int
	NightFactor float64
}

// DefaultPacing returns the production pacing profile.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		MinDelay: 2 * time.Second,
		MaxDelay: 5 * time.Second,
		Floor:    500 * time.Millisecond,
		Tiers: []ActivityTier{
			{Above: 25, Factor: 2.5},
			{Above: 15, Factor: 1.8},
			{Above: 8, Factor: 1.3},
		},
		ThinkingChance: 0.1,
		ThinkingMin:    2 * time.Second,
		ThinkingMax:    8 * time.Second,
		BusyStart:      9,
		BusyEnd:        17,
		BusyFactor:     0.8,
		NightStart:     22,
		NightEnd:       6,
		NightFactor:    1.4,
	}
}

func (p PacingConfig) enabled() bool {
	return p.MaxDelay > 0 || p.MinDelay > 0 || p.Floor > 0
}

// PacingDelay computes the delay before a request given the recent request
// count and the local time. The optional thinking pause is not included.
func (p PacingConfig) PacingDelay(src jitter.Source, recent int, at time.Time) time.Duration {
	if !p.enabled() {
		return 0
	}
	delay := float64(jitter.Duration(src, p.MinDelay, p.MaxDelay))
	for _, tier := range p.Tiers {
		if recent > tier.Above {
			delay *= tier.Factor
			break
		}
	}
	hour := at.Hour()
	switch {
	case p.BusyFactor > 0 && hour >= p.BusyStart && hour <= p.BusyEnd:
		delay *= p.BusyFactor
	case p.NightFactor > 0 && (hour >= p.NightStart || hour <= p.NightEnd):
		delay *= p.NightFactor
	}
	if d := time.Duration(delay); d > p.Floor {
		return d
	}
	return p.Floor
}

func (f *Fetcher) pace(ctx context.Context) error {
	p := f.cfg.Pacing
	if jitter.Chance(f.rnd, p.ThinkingChance) {
		if err := f.sleeper.Sleep(ctx, jitter.Duration(f.rnd, p.ThinkingMin, p.ThinkingMax)); err != nil {
			return fmt.Errorf("thinking pause: %w", err)
		}
	}
	delay := p.PacingDelay(f.rnd, f.governor.RecentRequests(), f.now())
	if delay <= 0 {
		return nil
	}
	metrics.ObservePacingDelay(delay)
	if err := f.sleeper.Sleep(ctx, delay); err != nil {
		return fmt.Errorf("pacing delay: %w", err)
	}
	return nil
}

// ReadingConfig simulates time spent reading a fetched page.
type ReadingConfig struct {
	// Chance is the probability of pausing at all; zero disables reading pauses.
	Chance       float64
	ShortBelow   int
	MediumBelow  int
	ShortMin     time.Duration
	ShortMax     time.Duration
	MediumMin    time.Duration
	MediumMax    time.Duration
	LongMin      time.Duration
	LongMax      time.Duration
	VariationMin float64
	VariationMax float64
}

// DefaultReading returns the production reading profile.
func DefaultReading() ReadingConfig {
	return ReadingConfig{
		Chance:       0.3,
		ShortBelow:   1000,
		MediumBelow:  5000,
		ShortMin:     500 * time.Millisecond,
		ShortMax:     2 * time.Second,
		MediumMin:    2 * time.Second,
		MediumMax:    8 * time.Second,
		LongMin:      5 * time.Second,
		LongMax:      15 * time.Second,
		VariationMin: 0.7,
		VariationMax: 1.3,
	}
}

// ReadingTime draws how long a reader would spend on a page of size bytes.
func (r ReadingConfig) ReadingTime(src jitter.Source, size int) time.Duration {
	var base time.Duration
	switch {
	case size < r.ShortBelow:
		base = jitter.Duration(src, r.ShortMin, r.ShortMax)
	case size < r.MediumBelow:
		base = jitter.Duration(src, r.MediumMin, r.MediumMax)
	default:
		base = jitter.Duration(src, r.LongMin, r.LongMax)
	}
	variation := jitter.Float(src, r.VariationMin, r.VariationMax)
	if variation <= 0 {
		variation = 1
	}
	return time.Duration(float64(base) * variation)
}

func (f *Fetcher) readingPause(ctx context.Context, size int) error {
	r := f.cfg.Reading
	if !jitter.Chance(f.rnd, r.Chance) {
		return nil
	}
	if err := f.sleeper.Sleep(ctx, r.ReadingTime(f.rnd, size)); err != nil {
		return fmt.Errorf("reading pause: %w", err)
	}
	return nil
}
