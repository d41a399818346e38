// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otlpsink

// pending holds async halves waiting for their partner, keyed by token.
// Once it holds max entries the oldest one is evicted to make room.
type pending[V any] struct {
	max   int
	items map[uint64]V
	order []uint64
}

func newPending[V any](max int) *pending[V] {
	return &pending[V]{
		max:   max,
		items: make(map[uint64]V),
	}
}

func (p *pending[V]) len() int {
	return len(p.items)
}

func (p *pending[V]) get(id uint64) (V, bool) {
	v, ok := p.items[id]
	return v, ok
}

func (p *pending[V]) take(id uint64) (V, bool) {
	v, ok := p.items[id]
	if ok {
		delete(p.items, id)
	}
	return v, ok
}

// put stores v under id and reports how many entries were evicted.
func (p *pending[V]) put(id uint64, v V) int {
	if _, ok := p.items[id]; ok {
		p.items[id] = v
		return 0
	}

	evicted := 0
	for len(p.items) >= p.max && len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		if _, ok := p.items[oldest]; ok {
			delete(p.items, oldest)
			evicted++
		}
	}
	p.items[id] = v
	p.order = append(p.order, id)

	// order keeps ids already taken; drop them once they dominate
	if len(p.order) > 2*p.max {
		live := make([]uint64, 0, len(p.items))
		for _, k := range p.order {
			if _, ok := p.items[k]; ok {
				live = append(live, k)
			}
		}
		p.order = live
	}
	return evicted
}
