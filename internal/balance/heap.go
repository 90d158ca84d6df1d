// Package balance ranks live backend servers by load.
//
// The core structure is a keyed binary min-heap: a slice holding the heap
// order plus an id → slot map so that update and arbitrary removal stay
// O(log n). Every swap touches both sides together; the map always mirrors
// the slice.
package balance

// ServerInfo describes one live backend as seen by the status service.
type ServerInfo struct {
	ID     uint32
	Addr   string
	Load   uint32
	LastTS int64 // monotonic milliseconds of the last report
}

// minHeap is a binary min-heap of *ServerInfo keyed by Load, with a companion
// index map from server id to heap slot. Not safe for concurrent use; the
// Balancer wraps it with a mutex.
type minHeap struct {
	items []*ServerInfo
	index map[uint32]int
}

func newMinHeap() *minHeap {
	return &minHeap{index: make(map[uint32]int)}
}

func (h *minHeap) Len() int { return len(h.items) }

// InsertOrUpdate inserts si or, if its id is already present, replaces the
// stored entry and restores heap order. hint narrows the restore work after
// an update: negative means the load only decreased (sift up), positive
// means it only increased (sift down), zero sifts both ways.
func (h *minHeap) InsertOrUpdate(si *ServerInfo, hint int) {
	if slot, ok := h.index[si.ID]; ok {
		h.items[slot] = si
		switch {
		case hint < 0:
			h.siftUp(slot)
		case hint > 0:
			h.siftDown(slot)
		default:
			h.siftUp(slot)
			h.siftDown(h.index[si.ID])
		}
		return
	}
	h.items = append(h.items, si)
	h.index[si.ID] = len(h.items) - 1
	h.siftUp(len(h.items) - 1)
}

// Top returns the minimum-load entry without removing it, or nil when empty.
func (h *minHeap) Top() *ServerInfo {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Pop removes and returns the minimum-load entry, or nil when empty.
func (h *minHeap) Pop() *ServerInfo {
	if len(h.items) == 0 {
		return nil
	}
	root := h.items[0]
	h.removeAt(0)
	return root
}

// Remove deletes the entry with the given id. Returns false if absent.
func (h *minHeap) Remove(id uint32) bool {
	slot, ok := h.index[id]
	if !ok {
		return false
	}
	h.removeAt(slot)
	return true
}

func (h *minHeap) removeAt(slot int) {
	last := len(h.items) - 1
	removed := h.items[slot]
	h.swap(slot, last)
	h.items = h.items[:last]
	delete(h.index, removed.ID)
	if slot < last {
		// The node swapped into the vacated slot may violate order in
		// either direction relative to its new parent and children.
		moved := h.items[slot]
		h.siftUp(slot)
		h.siftDown(h.index[moved.ID])
	}
}

func (h *minHeap) less(i, j int) bool {
	return h.items[i].Load < h.items[j].Load
}

func (h *minHeap) swap(i, j int) {
	if i == j {
		return
	}
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].ID] = i
	h.index[h.items[j].ID] = j
}

func (h *minHeap) siftUp(cur int) {
	for cur > 0 {
		parent := (cur - 1) / 2
		if !h.less(cur, parent) {
			break
		}
		h.swap(cur, parent)
		cur = parent
	}
}

func (h *minHeap) siftDown(cur int) {
	n := len(h.items)
	for {
		left := cur*2 + 1
		if left >= n {
			break
		}
		smallest := left
		if right := left + 1; right < n && h.less(right, left) {
			smallest = right
		}
		if !h.less(smallest, cur) {
			break
		}
		h.swap(cur, smallest)
		cur = smallest
	}
}
