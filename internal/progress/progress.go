// Package progress renders terminal progress bars for build passes.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/basekick-labs/drift/internal/ragged"
)

// Bar shows one progress bar per pass. It implements ragged.Observer.
type Bar struct {
	w io.Writer

	mu   sync.Mutex
	bars map[ragged.Pass]*progressbar.ProgressBar
}

// New returns a Bar writing to w.
func New(w io.Writer) *Bar {
	return &Bar{
		w:    w,
		bars: make(map[ragged.Pass]*progressbar.ProgressBar),
	}
}

func (b *Bar) newBar(size int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(size,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(b.w) }),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (b *Bar) Start(pass ragged.Pass, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[pass] = b.newBar(total, fmt.Sprintf("%-8s", pass))
}

func (b *Bar) get(pass ragged.Pass) *progressbar.ProgressBar {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bars[pass]
}

// Done advances the pass by one record. Safe for concurrent use.
func (b *Bar) Done(pass ragged.Pass) {
	if bar := b.get(pass); bar != nil {
		bar.Add(1)
	}
}

func (b *Bar) Finish(pass ragged.Pass) {
	b.mu.Lock()
	bar := b.bars[pass]
	delete(b.bars, pass)
	b.mu.Unlock()

	if bar != nil {
		bar.Finish()
	}
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(ragged.Pass, int) {}
func (Nop) Done(ragged.Pass)       {}
func (Nop) Finish(ragged.Pass)     {}
