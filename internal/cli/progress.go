package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// progress is a stderr indicator for one pipeline stage. A nil bar means
// progress output is off, and every method is then a no-op.
type progress struct {
	bar  *progressbar.ProgressBar
	tick chan struct{}
	done chan struct{}
	once sync.Once
}

// startSpinner animates an open-ended stage such as segmentation, where the
// amount of work is unknown up front.
func startSpinner(enabled bool, description string) *progress {
	if !enabled {
		return &progress{}
	}

	p := &progress{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(80*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
		tick: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.spin(120 * time.Millisecond)
	return p
}

// startClipProgress counts finished clips, failed ones included.
func startClipProgress(enabled bool, description string, total int) *progress {
	if !enabled || total <= 0 {
		return &progress{}
	}

	return &progress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

func (p *progress) spin(every time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-p.tick:
			return
		case <-ticker.C:
			_ = p.bar.Add(1)
		}
	}
}

func (p *progress) advance() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// stop finishes the bar and, for a spinner, waits for its goroutine. It is
// safe to call more than once.
func (p *progress) stop() {
	p.once.Do(func() {
		if p.tick != nil {
			close(p.tick)
			<-p.done
		}
		if p.bar != nil {
			_ = p.bar.Finish()
		}
	})
}
