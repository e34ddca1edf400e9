package frontier

// entryHeap implements heap.Interface over *Entry, ordered as a max-heap on
// (Priority, -hostRecentFetches, -insertionSeq) — higher priority first,
// then less-recently-fetched hosts first, then older insertions first.
// hostRecentFetches is supplied by the owning Frontier via hostTokens so the
// heap ordering itself stays free of host-fairness bookkeeping.
type entryHeap struct {
	items      []*Entry
	hostTokens map[string]float64
}

func (h entryHeap) Len() int { return len(h.items) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	ta, tb := h.hostTokens[a.Host], h.hostTokens[b.Host]
	if ta != tb {
		return ta < tb
	}
	return a.insertionSeq < b.insertionSeq
}

func (h entryHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIndex = i
	h.items[j].heapIndex = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.heapIndex = len(h.items)
	h.items = append(h.items, e)
}

func (h *entryHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
