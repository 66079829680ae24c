package ledger

// set writes m[k] = v and journals the previous entry.
func set[K comparable, V any](w *World, m map[K]V, k K, v V) {
	prev, existed := m[k]
	w.record(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// del removes m[k] and journals the previous entry.
func del[K comparable, V any](w *World, m map[K]V, k K) {
	prev, existed := m[k]
	if !existed {
		return
	}
	w.record(func() { m[k] = prev })
	delete(m, k)
}

// Journal records undo so that reverting to an earlier snapshot runs it.
// Contracts built outside this package use it to revert their own state
// along with the world.
func (w *World) Journal(undo func()) {
	w.record(undo)
}
