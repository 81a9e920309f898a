package jobs

import "sync"

// Handler executes one claimed job run. Implementations report the outcome
// through the job context; returning normally without calling Succeed or
// Fail leaves the run marked failed by the worker.
type Handler interface {
	Run(jc *Context)
}

// Registry maps job types to their handlers. Populated once at wire time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
