package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGalleryAppendAndSnapshot(t *testing.T) {
	g := NewGallery()
	assert.Equal(t, 0, g.Len())

	g.Add(Entry{PersonID: "EMP-1", Name: "alice", Embedding: []float32{1, 0}})
	g.AddAll([]Entry{
		{PersonID: "EMP-2", Name: "bob", Embedding: []float32{0, 1}},
		{PersonID: "EMP-1", Name: "alice", Embedding: []float32{0.9, 0.1}},
	})

	require.Equal(t, 3, g.Len())
	snap := g.Snapshot()
	assert.Equal(t, "alice", snap.Entries[0].Name)
	assert.Equal(t, "bob", snap.Entries[1].Name)
}

func TestGallerySnapshotIsolation(t *testing.T) {
	g := NewGallery()
	g.Add(Entry{PersonID: "EMP-1", Name: "alice", Embedding: []float32{1, 0}})

	snap := g.Snapshot()
	require.Len(t, snap.Entries, 1)

	// An append after the snapshot was taken must not be visible in it.
	g.Add(Entry{PersonID: "EMP-2", Name: "bob", Embedding: []float32{0, 1}})
	assert.Len(t, snap.Entries, 1)
	assert.Len(t, g.Snapshot().Entries, 2)
}
