package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{2 * 1024 * 1024 * 1024, "2.00 GB"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatBytes(tc.bytes))
	}
}

func TestGetSystemStatsPopulatesFields(t *testing.T) {
	stats := GetSystemStats()
	assert.Greater(t, stats.NumCPU, 0)
	assert.Greater(t, stats.GoRoutines, 0)
	assert.NotZero(t, stats.MemorySys)
	assert.False(t, stats.Timestamp.IsZero())
}
