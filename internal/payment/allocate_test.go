package payment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sum(xs []int64) int64 {
	var s int64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name   string
		charge int64
		bases  []int64
		want   []int64
	}{
		{"no discount", 6000, []int64{1000, 2000, 3000}, []int64{1000, 2000, 3000}},
		{"even split with remainder", 1000, []int64{500, 500, 500}, []int64{334, 333, 333}},
		{"proportional discount", 4500, []int64{2000, 3000}, []int64{1800, 2700}},
		{"largest remainder wins", 100, []int64{1, 1, 1}, []int64{34, 33, 33}},
		{"free seats", 0, []int64{1000, 1000}, []int64{0, 0}},
		{"zero bases", 10, []int64{0, 0, 0}, []int64{4, 3, 3}},
		{"empty", 500, nil, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allocate(tt.charge, tt.bases)
			assert.Equal(t, tt.want, got)
			if len(tt.bases) > 0 {
				assert.Equal(t, tt.charge, sum(got))
			}
		})
	}
}

func TestAllocateAlwaysSumsToCharge(t *testing.T) {
	bases := []int64{1999, 2499, 999, 12999, 1}
	for charge := int64(1); charge < 20000; charge += 137 {
		got := Allocate(charge, bases)
		assert.Equal(t, charge, sum(got), "charge %d", charge)
		for _, v := range got {
			assert.GreaterOrEqual(t, v, int64(0))
		}
	}
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("bk-1")
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Empty(t, k.locks)
}
