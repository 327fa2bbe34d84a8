package memory

import (
	"sync"
)

// Registry holds live values by id, with a secondary index by host page.
type Registry[T any] struct {
	mu     sync.RWMutex
	byID   map[string]T
	byPage map[string]string
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{byID: map[string]T{}, byPage: map[string]string{}}
}

// Claim stores v for page unless the page already has a value, in which case
// the existing value is returned with loaded=true.
func (r *Registry[T]) Claim(page, id string, v T) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPage[page]; ok {
		return r.byID[existing], true
	}
	r.byPage[page] = id
	r.byID[id] = v
	return v, false
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	v, ok := r.byID[id]
	r.mu.RUnlock()
	return v, ok
}

func (r *Registry[T]) ByPage(page string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPage[page]
	if !ok {
		var zero T
		return zero, false
	}
	return r.byID[id], true
}

func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok {
		return v, false
	}
	delete(r.byID, id)
	for page, pid := range r.byPage {
		if pid == id {
			delete(r.byPage, page)
		}
	}
	return v, true
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
