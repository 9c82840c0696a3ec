package bus

import (
	"sort"
	"sync"
)

// registry maps channels to handlers. Each entry is a single Handler value
// swapped atomically, so readers never observe half a registration.
type registry struct {
	m sync.Map // string -> Handler
}

// put stores h for channel and reports whether it replaced an entry.
func (r *registry) put(channel string, h Handler) (Handler, bool) {
	prev, loaded := r.m.Swap(channel, h)
	if !loaded {
		return nil, false
	}
	return prev.(Handler), true
}

func (r *registry) remove(channel string) bool {
	_, loaded := r.m.LoadAndDelete(channel)
	return loaded
}

func (r *registry) get(channel string) (Handler, bool) {
	v, ok := r.m.Load(channel)
	if !ok {
		return nil, false
	}
	return v.(Handler), true
}

func (r *registry) channels() []string {
	var out []string
	r.m.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	sort.Strings(out)
	return out
}
