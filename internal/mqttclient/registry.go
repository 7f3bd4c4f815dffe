package mqttclient

import (
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// registry maps subscribed topics to handlers.
//
// Exact topics are looked up first. Filters containing wildcards are only
// consulted when no exact entry exists, in the order they were first
// registered. Entries are replaced, never removed, except when Subscribe
// rolls back a registration the engine refused.
type registry struct {
	mu       sync.RWMutex
	exact    map[string]Handler
	filters  []filterEntry
	filterAt map[string]int
}

type filterEntry struct {
	filter  string
	handler Handler
}

func newRegistry() *registry {
	return &registry{
		exact:    make(map[string]Handler),
		filterAt: make(map[string]int),
	}
}

// set registers handler for topic, replacing any earlier handler. The
// returned undo puts back whatever was registered before.
func (r *registry) set(topic string, handler Handler) (undo func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !mqtt.IsWildcard(topic) {
		prev, existed := r.exact[topic]
		r.exact[topic] = handler
		return func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if existed {
				r.exact[topic] = prev
			} else {
				delete(r.exact, topic)
			}
		}
	}

	if i, ok := r.filterAt[topic]; ok {
		prev := r.filters[i].handler
		r.filters[i].handler = handler
		return func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if j, ok := r.filterAt[topic]; ok {
				r.filters[j].handler = prev
			}
		}
	}
	r.filterAt[topic] = len(r.filters)
	r.filters = append(r.filters, filterEntry{filter: topic, handler: handler})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.removeFilter(topic)
	}
}

// removeFilter drops a wildcard entry and reindexes the rest.
// Caller must hold r.mu.
func (r *registry) removeFilter(topic string) {
	i, ok := r.filterAt[topic]
	if !ok {
		return
	}
	r.filters = append(r.filters[:i], r.filters[i+1:]...)
	delete(r.filterAt, topic)
	for j := i; j < len(r.filters); j++ {
		r.filterAt[r.filters[j].filter] = j
	}
}

// lookup returns the handler for an inbound topic.
func (r *registry) lookup(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.exact[topic]; ok {
		return h, true
	}
	for _, e := range r.filters {
		if mqtt.MatchTopic(e.filter, topic) {
			return e.handler, true
		}
	}
	return nil, false
}

func (r *registry) has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.exact[topic]; ok {
		return true
	}
	_, ok := r.filterAt[topic]
	return ok
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.filters)
}

// topics returns every registered topic and filter, sorted.
func (r *registry) topics() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.exact)+len(r.filters))
	for t := range r.exact {
		out = append(out, t)
	}
	for _, e := range r.filters {
		out = append(out, e.filter)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}
