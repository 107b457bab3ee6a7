package ui

import (
	"fmt"
	"time"
)

// ETACalculator smooths the remote-reported frame counts into a local ETA
// for the watch loop. Remote snapshots arrive at poll granularity, so the
// calculator averages over the last few samples rather than trusting a
// single delta.
type ETACalculator struct {
	samples       []timestampedCount
	maxSamples    int
	maxTimeWindow time.Duration
}

type timestampedCount struct {
	timestamp time.Time
	items     int64
}

// NewETACalculator creates an ETA calculator averaging over the last 10
// samples or 30 seconds, whichever is more recent
func NewETACalculator() *ETACalculator {
	return &ETACalculator{
		maxSamples:    10,
		maxTimeWindow: 30 * time.Second,
	}
}

// RecordProgress records a progress measurement
func (e *ETACalculator) RecordProgress(itemsProcessed int64) {
	now := time.Now()
	e.samples = append(e.samples, timestampedCount{timestamp: now, items: itemsProcessed})

	if len(e.samples) > e.maxSamples {
		e.samples = e.samples[len(e.samples)-e.maxSamples:]
	}

	cutoff := now.Add(-e.maxTimeWindow)
	firstValid := 0
	for i, sample := range e.samples {
		if sample.timestamp.After(cutoff) {
			firstValid = i
			break
		}
	}
	if firstValid > 0 {
		e.samples = e.samples[firstValid:]
	}
}

// CalculateETA computes remaining time from recent throughput. Needs at
// least two samples showing forward progress.
func (e *ETACalculator) CalculateETA(totalItems int64, currentItems int64) (time.Duration, bool) {
	if len(e.samples) < 2 {
		return 0, false
	}
	if currentItems >= totalItems {
		return 0, true
	}

	perItem, ok := e.averageTimePerItem()
	if !ok {
		return 0, false
	}

	remaining := totalItems - currentItems
	return time.Duration(float64(remaining) * perItem.Seconds() * float64(time.Second)), true
}

// Throughput returns the current rate in items per second
func (e *ETACalculator) Throughput() (float64, bool) {
	perItem, ok := e.averageTimePerItem()
	if !ok {
		return 0, false
	}
	return 1.0 / perItem.Seconds(), true
}

func (e *ETACalculator) averageTimePerItem() (time.Duration, bool) {
	if len(e.samples) < 2 {
		return 0, false
	}

	first := e.samples[0]
	last := e.samples[len(e.samples)-1]

	timeDelta := last.timestamp.Sub(first.timestamp)
	itemsDelta := last.items - first.items
	if itemsDelta <= 0 || timeDelta <= 0 {
		return 0, false
	}

	return timeDelta / time.Duration(itemsDelta), true
}

// Reset clears all recorded samples
func (e *ETACalculator) Reset() {
	e.samples = nil
}

// FormatETA formats a duration as a compact human-readable string
func FormatETA(eta time.Duration) string {
	if eta < time.Second {
		return "< 1s"
	}
	if eta < time.Minute {
		return eta.Round(time.Second).String()
	}
	if eta < time.Hour {
		return fmt.Sprintf("%dm%ds", int(eta.Minutes()), int(eta.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(eta.Hours()), int(eta.Minutes())%60)
}
