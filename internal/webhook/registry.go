package webhook

import (
	"fmt"
	"sort"

	"shopifyapp/internal/queue"
)

// Payload is what a verified webhook hands to its job.
type Payload struct {
	Topic   string
	Domain  string
	EventID string
	Body    []byte
}

// Factory builds the job for one webhook delivery.
type Factory func(p Payload) queue.Job

// Registry maps normalized webhook types to job factories. It is filled at
// startup and read-only afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register binds topic to f. Registering the same topic twice panics.
func (r *Registry) Register(topic string, f Factory) {
	key := NormalizeTopic(topic)
	if key == "" || f == nil {
		panic("webhook: empty topic or nil factory")
	}
	if _, dup := r.factories[key]; dup {
		panic(fmt.Sprintf("webhook: topic %q registered twice", key))
	}
	r.factories[key] = f
}

func (r *Registry) Lookup(topic string) (Factory, bool) {
	f, ok := r.factories[NormalizeTopic(topic)]
	return f, ok
}

func (r *Registry) Topics() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
