package cast

import (
	"fmt"
	"sort"
	"sync"
)

// Handler is the Strategy interface for custom cast tags. Get turns a stored
// value into its read form and Set turns a written value into its stored
// form. owner is the entity being read or written, attrs its raw attributes.
type Handler interface {
	Get(owner any, key string, value any, attrs map[string]any) (any, error)
	Set(owner any, key string, value any, attrs map[string]any) (any, error)
}

// HandlerFuncs adapts a pair of functions to Handler. A nil function leaves
// the value unchanged.
type HandlerFuncs struct {
	GetFunc func(owner any, key string, value any, attrs map[string]any) (any, error)
	SetFunc func(owner any, key string, value any, attrs map[string]any) (any, error)
}

func (h HandlerFuncs) Get(owner any, key string, value any, attrs map[string]any) (any, error) {
	if h.GetFunc == nil {
		return value, nil
	}
	return h.GetFunc(owner, key, value, attrs)
}

func (h HandlerFuncs) Set(owner any, key string, value any, attrs map[string]any) (any, error) {
	if h.SetFunc == nil {
		return value, nil
	}
	return h.SetFunc(owner, key, value, attrs)
}

var (
	handlerRegistry = make(map[string]Handler)
	handlerMutex    sync.RWMutex
)

// Register makes a custom cast tag available to models defined afterwards.
// It panics on an empty tag, a built-in tag or a duplicate registration.
func Register(tag string, h Handler) {
	if h == nil {
		panic("cast handler cannot be nil")
	}
	if tag == "" {
		panic("cast tag cannot be empty")
	}
	if _, builtin := builtinKinds[tag]; builtin {
		panic(fmt.Sprintf("cast tag %q is built in", tag))
	}

	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	if _, exists := handlerRegistry[tag]; exists {
		panic(fmt.Sprintf("cast handler for tag %q is already registered", tag))
	}
	handlerRegistry[tag] = h
}

// Lookup returns the handler registered for tag.
func Lookup(tag string) (Handler, bool) {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()

	h, ok := handlerRegistry[tag]
	return h, ok
}

// Tags returns the registered custom tags, sorted.
func Tags() []string {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()

	tags := make([]string, 0, len(handlerRegistry))
	for t := range handlerRegistry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
