// ansari is a conversational Islamic-knowledge assistant. It answers
// questions by querying an LLM that can search the Qur'an, hadith
// collections, the encyclopedia of Islamic jurisprudence, and classical
// tafsir before composing its answer.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ansari/internal/config"
	"ansari/internal/llm"
	"ansari/internal/logging"
	"ansari/internal/prompt"
	"ansari/internal/tools"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ansari",
	Short: "Ansari - an Islamic knowledge assistant",
	Long: `Ansari answers questions about Islam by combining an LLM with
retrieval tools over the Qur'an, hadith collections, the encyclopedia of
Islamic jurisprudence (Mawsuah), and classical tafsir.

Run "ansari chat" for an interactive session, "ansari serve" for the HTTP
API, or "ansari batch" to answer a file of questions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := logging.Init(cfg.Logging.Level, verbose); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ansari.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(threadsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fallbackSystemPrompt keeps the assistant usable when the template
// directory is absent, as in a bare checkout.
const fallbackSystemPrompt = `You are Ansari, a helpful assistant answering questions about Islam.
Ground your answers in the Qur'an, authentic hadith, and classical scholarship
using the search tools available to you, and cite your sources.`

// buildCollaborators wires the pieces every subcommand needs: the provider
// client, the tool registry, and the rendered system prompt.
func buildCollaborators() (llm.Client, *tools.Registry, string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, "", err
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, nil, "", err
	}

	registry, err := tools.NewDefaultRegistry(cfg)
	if err != nil {
		return nil, nil, "", err
	}

	system := fallbackSystemPrompt
	if store, err := prompt.NewStore(cfg.Prompt.TemplatesDir); err != nil {
		logging.Get(logging.CategoryBoot).Warnf("template store unavailable (%v), using built-in system prompt", err)
	} else if rendered, err := store.Render(cfg.Agent.SystemPrompt, map[string]string{
		"today": time.Now().Format("2006-01-02"),
	}); err != nil {
		logging.Get(logging.CategoryBoot).Warnf("template %q unavailable (%v), using built-in system prompt", cfg.Agent.SystemPrompt, err)
	} else {
		system = rendered
	}

	return client, registry, system, nil
}
