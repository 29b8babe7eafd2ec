package caching

import (
	"sync"

	"github.com/google/btree"
)

type item[V any] struct {
	number uint64
	value  V
}

func lessItem[V any](a, b item[V]) bool {
	return a.number < b.number
}

// OrderCache keeps values ordered by block number, so a window of numbers can be pruned cheaply.
type OrderCache[V any] struct {
	m     Metrics
	label string
	data  *btree.BTreeG[item[V]]
	lock  sync.Mutex
}

func NewOrderCache[V any](m Metrics, label string) *OrderCache[V] {
	return &OrderCache[V]{
		m:     m,
		label: label,
		data:  btree.NewG[item[V]](32, lessItem[V]),
	}
}

// Put inserts or replaces the value at key. It returns the previous value, if any.
func (v *OrderCache[V]) Put(key uint64, value V) (prev V, replaced bool) {
	defer v.lock.Unlock()
	v.lock.Lock()

	old, replaced := v.data.ReplaceOrInsert(item[V]{number: key, value: value})
	if v.m != nil {
		v.m.CacheAdd(v.label, v.data.Len(), false)
	}
	return old.value, replaced
}

func (v *OrderCache[V]) Get(key uint64) (V, bool) {
	defer v.lock.Unlock()
	v.lock.Lock()

	i, ok := v.data.Get(item[V]{number: key})
	if v.m != nil {
		v.m.CacheGet(v.label, ok)
	}
	return i.value, ok
}

// Ceil returns the entry with the lowest number at or above key.
func (v *OrderCache[V]) Ceil(key uint64) (number uint64, value V, ok bool) {
	defer v.lock.Unlock()
	v.lock.Lock()

	v.data.AscendGreaterOrEqual(item[V]{number: key}, func(i item[V]) bool {
		number, value, ok = i.number, i.value, true
		return false // stop
	})
	return
}

// Max returns the entry with the highest number.
func (v *OrderCache[V]) Max() (number uint64, value V, ok bool) {
	defer v.lock.Unlock()
	v.lock.Lock()

	i, ok := v.data.Max()
	return i.number, i.value, ok
}

func (v *OrderCache[V]) Len() int {
	defer v.lock.Unlock()
	v.lock.Lock()
	return v.data.Len()
}

func (v *OrderCache[V]) RemoveAll() {
	defer v.lock.Unlock()
	v.lock.Lock()
	v.data.Clear(false)
}

// RemoveLessThan deletes every entry with a number below p, and returns how many were removed.
func (v *OrderCache[V]) RemoveLessThan(p uint64) (removed int) {
	defer v.lock.Unlock()
	v.lock.Lock()

	for {
		i, ok := v.data.Min()
		if !ok || i.number >= p {
			break
		}
		v.data.DeleteMin()
		removed++
	}
	if removed > 0 && v.m != nil {
		v.m.CacheAdd(v.label, v.data.Len(), true)
	}
	return
}

// RemoveGreaterThan deletes every entry with a number above p, and returns how many were removed.
func (v *OrderCache[V]) RemoveGreaterThan(p uint64) (removed int) {
	defer v.lock.Unlock()
	v.lock.Lock()

	for {
		i, ok := v.data.Max()
		if !ok || i.number <= p {
			break
		}
		v.data.DeleteMax()
		removed++
	}
	return
}
