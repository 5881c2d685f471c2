package smoother

import (
	"sort"

	"abrplink/backend/services/abrp-agent/internal/models"
)

// DefaultCapacity holds a little more than one minute of 1 Hz samples.
const DefaultCapacity = 120

// Buffer collects high-rate power/speed samples between two low-rate ticks.
// It is owned by the scheduler loop and is not safe for concurrent use.
type Buffer struct {
	entries  []models.Sample
	capacity int
}

// NewBuffer returns buffer bounded to capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]models.Sample, 0, capacity),
		capacity: capacity,
	}
}

// Accumulate appends one sample, dropping the oldest when full.
func (b *Buffer) Accumulate(power, speed float64) {
	if len(b.entries) >= b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, models.Sample{Power: power, Speed: speed})
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Drain returns the median sample by power and empties the buffer. For an even count the
// lower of the two middle entries is returned; entries are never averaged.
func (b *Buffer) Drain() (models.Sample, bool) {
	defer func() { b.entries = b.entries[:0] }()

	n := len(b.entries)
	if n == 0 {
		return models.Sample{}, false
	}

	sorted := make([]models.Sample, n)
	copy(sorted, b.entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Power < sorted[j].Power })

	mid := n / 2
	if n%2 == 0 {
		mid--
	}
	return sorted[mid], true
}
