package logindex

import "sync"

// Registry maps file paths to their indexes. A registry belongs to one view
// session, so indexes never outlive the session that built them.
type Registry struct {
	mu      sync.Mutex
	indexes map[string]*Index
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{indexes: make(map[string]*Index)}
}

// Get returns the index for path, creating it on first use
func (r *Registry) Get(path string) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.indexes[path]
	if !ok {
		idx = New(path)
		r.indexes[path] = idx
	}
	return idx
}

// Len returns the number of indexed files
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indexes)
}
