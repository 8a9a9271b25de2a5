package turtle

// Listener is notified of events fired by a turtle, such as a completed fill shape.
type Listener interface {
	HandleTurtleEvent(t *Turtle, event string)
}

// EventFill is fired when a fill shape is completed.
const EventFill = "fill"

// AddListener adds the listener passed to the turtle. Adding a listener twice has no effect.
func (t *Turtle) AddListener(l Listener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	for _, existing := range t.listeners {
		if existing == l {
			return
		}
	}
	t.listeners = append(t.listeners, l)
}

// RemoveListener removes the listener passed from the turtle.
func (t *Turtle) RemoveListener(l Listener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// FireEvent notifies every listener of the event passed. Listeners are called on the calling goroutine.
func (t *Turtle) FireEvent(event string) {
	t.listenerMu.Lock()
	listeners := append([]Listener(nil), t.listeners...)
	t.listenerMu.Unlock()

	for _, l := range listeners {
		l.HandleTurtleEvent(t, event)
	}
}
