package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Processor executes one unit of work. Implementations must communicate
// failure by returning an error; they must not retain the input beyond
// the call. A single blocking, context-aware method covers both
// synchronous and asynchronous callbacks.
type Processor interface {
	Process(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

func (f ProcessorFunc) Process(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f(ctx, input)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Processor{}
)

// Register makes a processor available under a stable name.
//
// Process-isolated execution identifies work by registered name only:
// the child process looks the processor up in its own registry, so
// closures never cross the process boundary. Registering an empty name
// or a nil processor panics; re-registering a name overwrites it.
func Register(name string, p Processor) {
	if name == "" {
		panic("job: Register with empty name")
	}
	if p == nil {
		panic("job: Register with nil processor")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = p
}

// Lookup returns the processor registered under name.
func Lookup(name string) (Processor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no processor registered under %q", name)
	}
	return p, nil
}

// Names lists registered processor names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
