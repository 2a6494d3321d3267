package presentation

import (
	"slices"

	"github.com/rs/zerolog"
)

// AvailabilityQuery asks the host, synchronously, whether a presentation
// display is available.
type AvailabilityQuery func() (bool, error)

// Broadcaster caches the display-available flag and fans changes out to
// listeners. While nobody listens for DisplayAvailableChange the cache is
// not kept fresh by the host, so Availability pulls; once someone listens,
// pushed notifications keep it current.
type Broadcaster struct {
	available bool
	observers map[Event][]*Listener
	slot      *Listener
	query     AvailabilityQuery
	logger    zerolog.Logger
}

func NewBroadcaster(query AvailabilityQuery, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		observers: make(map[Event][]*Listener),
		query:     query,
		logger:    logger,
	}
}

// Availability returns the display-available flag, querying the host first
// when there are no change listeners.
func (b *Broadcaster) Availability() bool {
	if len(b.observers[DisplayAvailableChange]) > 0 || b.query == nil {
		return b.available
	}

	available, err := b.query()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to query display availability")
		return b.available
	}
	b.available = available
	return b.available
}

func (b *Broadcaster) AddListener(event Event, l *Listener) {
	if l == nil {
		return
	}
	b.observers[event] = append(b.observers[event], l)
}

// RemoveListener removes the first registration of l for event.
func (b *Broadcaster) RemoveListener(event Event, l *Listener) {
	list := b.observers[event]
	i := slices.Index(list, l)
	if i < 0 {
		return
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(b.observers, event)
		return
	}
	b.observers[event] = list
}

func (b *Broadcaster) ListenerCount(event Event) int {
	return len(b.observers[event])
}

// Notify records a pushed availability value. When it differs from the
// cache, every listener registered at this moment is invoked in order;
// listeners added or removed during the pass take effect on the next one.
// It reports whether listeners were notified.
func (b *Broadcaster) Notify(available bool) bool {
	if available == b.available {
		return false
	}
	b.available = available

	snapshot := slices.Clone(b.observers[DisplayAvailableChange])
	b.logger.Debug().Bool("available", available).Int("listeners", len(snapshot)).Msg("display availability changed")
	for _, l := range snapshot {
		l.invoke()
	}
	return true
}

// SetSlot replaces the single ondisplayavailablechange handler. nil clears it.
func (b *Broadcaster) SetSlot(l *Listener) {
	if b.slot != nil {
		b.RemoveListener(DisplayAvailableChange, b.slot)
	}
	b.slot = l
	if l != nil {
		b.AddListener(DisplayAvailableChange, l)
	}
}

func (b *Broadcaster) Slot() *Listener {
	return b.slot
}
