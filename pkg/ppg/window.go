package ppg

// WindowSize is the number of pairs the estimators look at.
const WindowSize = 100

// Window is a fixed-capacity FIFO of the most recent pairs, stored as a ring
// buffer. Logical order is always oldest first, regardless of where the head
// currently is in the arena.
type Window struct {
	buf   []Pair
	head  int // index of the oldest pair
	count int
}

// NewWindow creates an empty window. Non-positive sizes fall back to WindowSize.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = WindowSize
	}
	return &Window{buf: make([]Pair, size)}
}

// Push appends p as the newest pair, evicting the oldest one once the window is full.
func (w *Window) Push(p Pair) {
	n := len(w.buf)
	if w.count < n {
		w.buf[(w.head+w.count)%n] = p
		w.count++
		return
	}
	w.buf[w.head] = p
	w.head = (w.head + 1) % n
}

// Len returns the number of pairs currently held.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Full reports whether the initial fill has completed.
func (w *Window) Full() bool {
	return w.count == len(w.buf)
}

// At returns the i-th pair in logical order (0 is the oldest).
func (w *Window) At(i int) Pair {
	return w.buf[(w.head+i)%len(w.buf)]
}

// Snapshot copies the window contents, oldest first, into dst.
// dst is reused when it has enough capacity, otherwise a new slice is allocated.
func (w *Window) Snapshot(dst []Pair) []Pair {
	if cap(dst) >= w.count {
		dst = dst[:w.count]
	} else {
		dst = make([]Pair, w.count)
	}
	n := len(w.buf)
	first := copy(dst, w.buf[w.head:min(w.head+w.count, n)])
	copy(dst[first:], w.buf[:w.count-first])
	return dst
}

// Fill performs the start-up fill phase: exactly Cap() reads from src, calling
// delay between reads. A failed read repeats the previous pair (zero for the
// first one). It returns the number of failed reads.
func (w *Window) Fill(src Source, delay func()) int {
	var (
		last   Pair
		failed int
	)
	for i := range len(w.buf) {
		if i > 0 && delay != nil {
			delay()
		}
		p, err := src.Read()
		if err != nil {
			failed++
			p = last
		}
		w.Push(p)
		last = p
	}
	return failed
}

// Reset empties the window.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}
