package cli

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBars draws one bar per pipeline stage.
type progressBars struct {
	p *mpb.Progress

	mu   sync.Mutex
	bars []*mpb.Bar
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{p: mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))}
}

func (b *progressBars) stage(name string, total int) func() {
	bar := b.p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	b.mu.Lock()
	b.bars = append(b.bars, bar)
	b.mu.Unlock()
	return bar.Increment
}

// wait aborts stages left unfinished by an early return, then flushes.
func (b *progressBars) wait() {
	b.mu.Lock()
	for _, bar := range b.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	b.mu.Unlock()
	b.p.Wait()
}
