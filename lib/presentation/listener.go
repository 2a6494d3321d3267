package presentation

// Event names an observable event. Only DisplayAvailableChange is ever fired;
// listeners registered under other names are kept but never invoked.
type Event string

const DisplayAvailableChange Event = "displayavailablechange"

// Listener is an observer callback with identity. Registering the same
// *Listener twice yields two invocations per event, and removal matches by
// pointer.
type Listener struct {
	fn func()
}

func NewListener(fn func()) *Listener {
	return &Listener{fn: fn}
}

func (l *Listener) invoke() {
	if l == nil || l.fn == nil {
		return
	}
	l.fn()
}
