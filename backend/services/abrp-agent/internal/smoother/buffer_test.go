package smoother

import (
	"math/rand"
	"testing"

	"abrplink/backend/services/abrp-agent/internal/models"
)

func fill(b *Buffer, samples []models.Sample) {
	for _, s := range samples {
		b.Accumulate(s.Power, s.Speed)
	}
}

func TestDrainEmpty(t *testing.T) {
	b := NewBuffer(0)
	if _, ok := b.Drain(); ok {
		t.Fatalf("expected no representative for empty buffer")
	}
}

func TestDrainOddCountAnyOrder(t *testing.T) {
	samples := []models.Sample{
		{Power: 1, Speed: 10},
		{Power: 2, Speed: 4},
		{Power: 3, Speed: 3},
		{Power: 4, Speed: 2},
		{Power: 10, Speed: 1},
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Sample(nil), samples...)
		rng.Shuffle(len(shuffled), func(a, c int) { shuffled[a], shuffled[c] = shuffled[c], shuffled[a] })

		b := NewBuffer(10)
		fill(b, shuffled)
		got, ok := b.Drain()
		if !ok || got != (models.Sample{Power: 3, Speed: 3}) {
			t.Fatalf("order %v: expected {3 3}, got %v", shuffled, got)
		}
	}
}

func TestDrainEvenCountPicksLowerMiddle(t *testing.T) {
	b := NewBuffer(10)
	fill(b, []models.Sample{
		{Power: 10, Speed: 1},
		{Power: 3, Speed: 3},
		{Power: 1, Speed: 10},
		{Power: 4, Speed: 2},
	})

	got, ok := b.Drain()
	if !ok {
		t.Fatalf("expected representative")
	}
	if got != (models.Sample{Power: 3, Speed: 3}) {
		t.Fatalf("expected lower middle entry {3 3}, got %v", got)
	}
}

func TestDrainAlwaysClears(t *testing.T) {
	b := NewBuffer(10)
	fill(b, []models.Sample{{Power: 5, Speed: 50}})

	if _, ok := b.Drain(); !ok {
		t.Fatalf("expected single entry representative")
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffer cleared, len=%d", b.Len())
	}
	if _, ok := b.Drain(); ok {
		t.Fatalf("expected second drain to be empty")
	}
}

func TestAccumulateDropsOldestWhenFull(t *testing.T) {
	b := NewBuffer(3)
	fill(b, []models.Sample{{Power: 100}, {Power: 1}, {Power: 2}, {Power: 3}})

	if b.Len() != 3 {
		t.Fatalf("expected bounded length 3, got %d", b.Len())
	}
	got, _ := b.Drain()
	if got.Power != 2 {
		t.Fatalf("expected oldest (100) dropped and median 2, got %v", got.Power)
	}
}
