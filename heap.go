package mqtt

// timeoutEntry is the heap element keyed by (timeoutAt, opID). opID breaks
// ties between entries that share the same timeoutAt so pops are
// deterministic regardless of insertion order.
type timeoutEntry struct {
	timeoutAt int64
	opID      uint64
}

func (a timeoutEntry) less(b timeoutEntry) bool {
	if a.timeoutAt != b.timeoutAt {
		return a.timeoutAt < b.timeoutAt
	}
	return a.opID < b.opID
}

// timeoutHeap is a binary min-heap over timeoutEntry. It backs the
// per-operation timeout schedule: single-threaded, no locking, ties broken
// by op-id so repeated timestamps still produce a total order.
type timeoutHeap struct {
	data []timeoutEntry
}

func (h *timeoutHeap) empty() bool {
	return len(h.data) == 0
}

func (h *timeoutHeap) clear() {
	h.data = h.data[:0]
}

func (h *timeoutHeap) peek() (timeoutEntry, bool) {
	if h.empty() {
		return timeoutEntry{}, false
	}
	return h.data[0], true
}

func (h *timeoutHeap) push(e timeoutEntry) {
	h.data = append(h.data, e)
	h.siftUp(len(h.data) - 1)
}

// pop removes and returns the minimum entry. It panics if the heap is
// empty; callers must check empty() first.
func (h *timeoutHeap) pop() timeoutEntry {
	if h.empty() {
		panic("mqtt: pop from empty timeout heap")
	}
	top := h.data[0]
	last := len(h.data) - 1
	h.data[0] = h.data[last]
	h.data = h.data[:last]
	if len(h.data) > 0 {
		h.siftDown(0)
	}
	return top
}

func (h *timeoutHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.data[i].less(h.data[parent]) {
			break
		}
		h.data[i], h.data[parent] = h.data[parent], h.data[i]
		i = parent
	}
}

func (h *timeoutHeap) siftDown(i int) {
	n := len(h.data)
	for {
		left, right, smallest := 2*i+1, 2*i+2, i
		if left < n && h.data[left].less(h.data[smallest]) {
			smallest = left
		}
		if right < n && h.data[right].less(h.data[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.data[i], h.data[smallest] = h.data[smallest], h.data[i]
		i = smallest
	}
}
