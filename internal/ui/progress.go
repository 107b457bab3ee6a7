package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressBar wraps the progressbar library for operations with a known
// total (pipeline watch, batch downloads)
type ProgressBar struct {
	bar         *progressbar.ProgressBar
	description string
	total       int64
	current     int64
	startTime   time.Time
}

// NewProgressBar creates a progress bar writing to stderr
func NewProgressBar(total int64, description string) *ProgressBar {
	return newProgressBar(total, description, os.Stderr)
}

// NewProgressBarWithWriter creates a progress bar with a custom writer,
// useful in tests
func NewProgressBarWithWriter(total int64, description string, writer io.Writer) *ProgressBar {
	return newProgressBar(total, description, writer)
}

func newProgressBar(total int64, description string, writer io.Writer) *ProgressBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(500*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(false),
	)

	return &ProgressBar{
		bar:         bar,
		description: description,
		total:       total,
		startTime:   time.Now(),
	}
}

// Set moves the bar to an absolute position
func (p *ProgressBar) Set(value int64) error {
	p.current = value
	return p.bar.Set64(value)
}

// Add increments the bar
func (p *ProgressBar) Add(amount int64) error {
	p.current += amount
	return p.bar.Add64(amount)
}

// Finish completes the bar
func (p *ProgressBar) Finish() error {
	return p.bar.Finish()
}

// Clear removes the bar from the terminal
func (p *ProgressBar) Clear() error {
	return p.bar.Clear()
}

// GetPercentage returns current completion percentage (0-100)
func (p *ProgressBar) GetPercentage() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.current) / float64(p.total) * 100
}

// Spinner provides feedback for operations with unknown duration
// (waiting for a spawn to be accepted, per-batch downloads)
type Spinner struct {
	description string
	startTime   time.Time
	active      bool
}

// NewSpinner creates a spinner for unknown-duration operations
func NewSpinner(description string) *Spinner {
	return &Spinner{description: description}
}

// Start begins the spinner
func (s *Spinner) Start() {
	s.active = true
	s.startTime = time.Now()
	fmt.Printf("%s...\n", s.description)
}

// Stop ends the spinner
func (s *Spinner) Stop(success bool) {
	s.active = false
	elapsed := time.Since(s.startTime)

	if success {
		fmt.Printf("✓ %s (completed in %v)\n", s.description, elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("✗ %s (failed after %v)\n", s.description, elapsed.Round(time.Millisecond))
	}
}

// IsActive reports whether the spinner is running
func (s *Spinner) IsActive() bool {
	return s.active
}
