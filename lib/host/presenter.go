package host

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

// Presenter puts a page on a display. Show returns once the page has loaded
// and the view can be scripted; the handle is what the client receives.
type Presenter interface {
	Show(ctx context.Context, display Display, url string) (presentation.ViewHandle, error)
	Dismiss(ctx context.Context, view presentation.ViewHandle) error
}

// LoggingPresenter draws nothing. It hands out increasing view handles and
// logs what it would have shown.
type LoggingPresenter struct {
	mu     sync.Mutex
	next   presentation.ViewHandle
	shown  map[presentation.ViewHandle]string
	logger zerolog.Logger
}

func NewLoggingPresenter(logger zerolog.Logger) *LoggingPresenter {
	return &LoggingPresenter{
		shown:  make(map[presentation.ViewHandle]string),
		logger: logger,
	}
}

func (p *LoggingPresenter) Show(ctx context.Context, display Display, url string) (presentation.ViewHandle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.next++
	view := p.next
	p.shown[view] = url
	p.mu.Unlock()

	p.logger.Info().Int("display", display.ID).Str("display_name", display.Name).Str("url", url).Int64("view", int64(view)).Msg("presentation shown")
	return view, nil
}

func (p *LoggingPresenter) Dismiss(_ context.Context, view presentation.ViewHandle) error {
	p.mu.Lock()
	url, ok := p.shown[view]
	delete(p.shown, view)
	p.mu.Unlock()

	if ok {
		p.logger.Info().Int64("view", int64(view)).Str("url", url).Msg("presentation dismissed")
	}
	return nil
}

// Showing returns the number of views not yet dismissed.
func (p *LoggingPresenter) Showing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shown)
}
