// Package tools provides the retrieval adapters the agent can invoke:
// Qur'an search, Hadith search, the jurisprudence encyclopedia (Mawsuah),
// and tafsir search. Adapters are stateless per call and safe to share
// across concurrently running agents.
package tools

import (
	"context"
	"fmt"

	"ansari/internal/conversation"
	"ansari/internal/llm"
)

// Hit is one raw search result returned by a backend.
type Hit struct {
	ID     string `json:"id"`
	Source string `json:"source"` // e.g. "Quran 55:22", "Sahih Muslim 2577"
	Arabic string `json:"text"`
	// English holds the translated text; bilingual backends fill both.
	English string  `json:"en_text"`
	Score   float64 `json:"score"`
}

// Adapter is the contract every retrieval tool satisfies. Run may fail on
// transport errors; the formatters are pure and never fail on well-formed
// hits. An empty hit list formats to empty output; substituting a
// "no results" placeholder is the caller's concern.
type Adapter interface {
	Name() string
	Definition() llm.ToolDefinition
	Run(ctx context.Context, query string) ([]Hit, error)
	FormatAsList(hits []Hit) []string
	FormatAsReferenceDocuments(hits []Hit) []conversation.Document
}

// Registry routes tool invocations by machine name. Built once at startup,
// read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("adapter with empty name")
		}
		if _, exists := r.adapters[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.adapters[name] = a
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Definitions returns the tool schemas in registration order, as handed to
// the LLM provider.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.adapters[name].Definition())
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
