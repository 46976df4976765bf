package preroll

// ringStore is the ordered FIFO of queued items, oldest first. It owns the
// single authoritative reference to each stored item until the item is
// evicted or handed downstream. All methods assume the caller holds the
// buffer's lock.
type ringStore struct {
	items []QueuedItem

	frames      int
	bytes       int64
	oldestGroup uint64
	newestGroup uint64
}

// admit appends an item at the tail and updates the group bookkeeping.
func (s *ringStore) admit(it QueuedItem) {
	s.items = append(s.items, it)
	s.bytes += int64(it.Size())
	if f := it.Frame; f != nil {
		if s.frames == 0 {
			s.oldestGroup = f.GroupID
		}
		s.frames++
		s.newestGroup = f.GroupID
	}
}

// removeHead pops the oldest item. The second return is false when the store
// is empty. Removing the last frame of a group advances oldestGroup to the
// group of the next resident frame.
func (s *ringStore) removeHead() (QueuedItem, bool) {
	if len(s.items) == 0 {
		return QueuedItem{}, false
	}
	it := s.items[0]
	s.items[0] = QueuedItem{}
	s.items = s.items[1:]
	s.bytes -= int64(it.Size())
	if it.IsFrame() {
		s.frames--
		s.refreshOldest()
	}
	return it, true
}

// peekHead returns the oldest item without removing it.
func (s *ringStore) peekHead() (QueuedItem, bool) {
	if len(s.items) == 0 {
		return QueuedItem{}, false
	}
	return s.items[0], true
}

// refreshOldest rescans for the first resident frame's group. Events do not
// carry group membership, so only frames count.
func (s *ringStore) refreshOldest() {
	for _, it := range s.items {
		if it.Frame != nil {
			s.oldestGroup = it.Frame.GroupID
			return
		}
	}
}

// clear discards every item and resets all bookkeeping.
func (s *ringStore) clear() {
	s.items = nil
	s.frames = 0
	s.bytes = 0
	s.oldestGroup = 0
	s.newestGroup = 0
}

// len returns the total number of queued items, frames and events alike.
func (s *ringStore) len() int { return len(s.items) }

// frameCount returns the number of resident frames.
func (s *ringStore) frameCount() int { return s.frames }

// groupCount returns the number of resident groups. Group ids increment
// contiguously, so the span between oldest and newest is the count.
func (s *ringStore) groupCount() int {
	if s.frames == 0 {
		return 0
	}
	return int(s.newestGroup-s.oldestGroup) + 1
}
