package preroll

// Observer receives lifecycle callbacks from a buffer. Implementations must
// be fast and must not call back into the buffer: callbacks run under the
// buffer's lock. The default observer is a no-op; tests and debug builds can
// inject a recording one.
type Observer interface {
	// ItemStored is called after an item is admitted to the ring store.
	ItemStored(it QueuedItem)
	// ItemEvicted is called for each item destroyed by pruning or by an
	// EOS/re-arm discard. A stream reset clears the store wholesale,
	// without per-item callbacks.
	ItemEvicted(it QueuedItem)
	// DrainStarted is called before a drain begins, with the number of
	// items about to be emitted.
	DrainStarted(pending int)
	// DrainFinished is called after a drain, with the number of items
	// actually emitted (fewer than pending if a reset raced the drain).
	DrainFinished(emitted int)
	// ModeChanged is called on every mode transition.
	ModeChanged(from, to Mode)
}

// nopObserver is the zero-cost default Observer.
type nopObserver struct{}

func (nopObserver) ItemStored(QueuedItem)  {}
func (nopObserver) ItemEvicted(QueuedItem) {}
func (nopObserver) DrainStarted(int)       {}
func (nopObserver) DrainFinished(int)      {}
func (nopObserver) ModeChanged(Mode, Mode) {}
