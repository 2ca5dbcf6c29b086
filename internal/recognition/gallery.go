package recognition

import (
	"sync"
	"sync/atomic"
)

// Entry is one reference embedding for a known identity. A person may have
// several entries.
type Entry struct {
	PersonID  string
	Name      string
	Embedding []float32
}

// Snapshot is an immutable view of the gallery. Matching iterates a snapshot
// without any locking; appends publish a fresh snapshot instead of mutating
// a published one.
type Snapshot struct {
	Entries []Entry
}

// Gallery holds the known identities. Appends are serialized; reads are
// lock-free over the atomically swapped snapshot.
type Gallery struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// NewGallery creates an empty gallery.
func NewGallery() *Gallery {
	g := &Gallery{}
	g.snap.Store(&Snapshot{})
	return g
}

// Add appends one entry.
func (g *Gallery) Add(e Entry) {
	g.AddAll([]Entry{e})
}

// AddAll appends entries in one snapshot swap.
func (g *Gallery) AddAll(entries []Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.snap.Load()
	next := &Snapshot{Entries: make([]Entry, 0, len(old.Entries)+len(entries))}
	next.Entries = append(next.Entries, old.Entries...)
	next.Entries = append(next.Entries, entries...)
	g.snap.Store(next)
}

// Snapshot returns the current immutable view.
func (g *Gallery) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Len reports the number of reference embeddings.
func (g *Gallery) Len() int {
	return len(g.snap.Load().Entries)
}
