package tools

import (
	"context"
	"fmt"
	"strings"

	"ansari/internal/config"
	"ansari/internal/conversation"
	"ansari/internal/llm"
)

// searchAdapter is the shared implementation behind the four retrieval
// tools; they differ only in name, backend, provenance tag, and whether
// their hits may be quoted verbatim in citations.
type searchAdapter struct {
	name            string
	description     string
	path            string
	origin          string
	citationEnabled bool
	client          *searchClient
}

func (a *searchAdapter) Name() string { return a.name }

func (a *searchAdapter) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        a.name,
		Description: a.description,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Topic or phrase to search for.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (a *searchAdapter) Run(ctx context.Context, query string) ([]Hit, error) {
	return a.client.search(ctx, a.path, query)
}

// FormatAsList renders hits as short human-readable reference lines.
func (a *searchAdapter) FormatAsList(hits []Hit) []string {
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		var sb strings.Builder
		sb.WriteString(h.Source)
		if h.Arabic != "" {
			sb.WriteString("\nArabic: " + h.Arabic)
		}
		if h.English != "" {
			sb.WriteString("\nEnglish: " + h.English)
		}
		lines = append(lines, sb.String())
	}
	return lines
}

// FormatAsReferenceDocuments renders hits as citation documents.
func (a *searchAdapter) FormatAsReferenceDocuments(hits []Hit) []conversation.Document {
	docs := make([]conversation.Document, 0, len(hits))
	for _, h := range hits {
		body := h.Arabic
		if h.English != "" {
			if body != "" {
				body += "\n"
			}
			body += h.English
		}
		docs = append(docs, conversation.Document{
			Title:           h.Source,
			Body:            body,
			Origin:          a.origin,
			CitationEnabled: a.citationEnabled,
		})
	}
	return docs
}

// NewQuranSearch searches Qur'an verses by topic.
func NewQuranSearch(cfg config.SearchServiceConfig) Adapter {
	return &searchAdapter{
		name:            "search_quran",
		description:     "Search the Qur'an for verses related to a topic. Returns verses in Arabic with English translation.",
		path:            "/v1/quran/search",
		origin:          "quran",
		citationEnabled: true,
		client:          newSearchClient(cfg),
	}
}

// NewHadithSearch searches graded hadith collections.
func NewHadithSearch(cfg config.SearchServiceConfig) Adapter {
	return &searchAdapter{
		name:            "search_hadith",
		description:     "Search canonical hadith collections for narrations related to a topic. Returns narrations with source and grading.",
		path:            "/v1/hadith/search",
		origin:          "hadith",
		citationEnabled: true,
		client:          newSearchClient(cfg),
	}
}

// NewMawsuahSearch searches the Kuwaiti encyclopedia of Islamic
// jurisprudence.
func NewMawsuahSearch(cfg config.SearchServiceConfig) Adapter {
	return &searchAdapter{
		name:            "search_mawsuah",
		description:     "Search the encyclopedia of Islamic jurisprudence (fiqh) for rulings and scholarly positions on a topic.",
		path:            "/v1/mawsuah/search",
		origin:          "mawsuah",
		citationEnabled: false, // encyclopedia articles are paraphrased, not quoted
		client:          newSearchClient(cfg),
	}
}

// NewTafsirSearch searches classical Qur'anic commentary.
func NewTafsirSearch(cfg config.SearchServiceConfig) Adapter {
	return &searchAdapter{
		name:            "search_tafsir",
		description:     "Search classical tafsir (Qur'anic exegesis) for commentary on a verse or topic.",
		path:            "/v1/tafsir/search",
		origin:          "tafsir",
		citationEnabled: true,
		client:          newSearchClient(cfg),
	}
}

// NewDefaultRegistry wires the four standard adapters from configuration.
func NewDefaultRegistry(cfg *config.Config) (*Registry, error) {
	registry, err := NewRegistry(
		NewQuranSearch(cfg.Tools.Quran),
		NewHadithSearch(cfg.Tools.Hadith),
		NewMawsuahSearch(cfg.Tools.Mawsuah),
		NewTafsirSearch(cfg.Tools.Tafsir),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	return registry, nil
}
