package session

// DefaultScrollThreshold is how close to the bottom, in pixels, the viewer
// must be for new messages to scroll into view.
const DefaultScrollThreshold = 80

// scrollTracker decides whether new messages should force a scroll to the newest one.
type scrollTracker struct {
	threshold    int
	nearBottom   bool
	justSwitched bool
}

func newScrollTracker(threshold int) *scrollTracker {
	if threshold <= 0 {
		threshold = DefaultScrollThreshold
	}
	return &scrollTracker{threshold: threshold, nearBottom: true}
}

// update records the viewer's distance from the bottom of the list.
func (t *scrollTracker) update(distanceFromBottom int) {
	t.nearBottom = distanceFromBottom <= t.threshold
}

// switched marks a conversation switch; the next growth scrolls unconditionally.
func (t *scrollTracker) switched() {
	t.justSwitched = true
	t.nearBottom = true
}

// grew reports whether the list should scroll after a new newest message appeared.
func (t *scrollTracker) grew() bool {
	scroll := t.nearBottom || t.justSwitched
	t.justSwitched = false
	return scroll
}
