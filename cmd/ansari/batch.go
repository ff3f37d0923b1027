package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ansari/internal/agent"
	"ansari/internal/logging"
)

var (
	batchOutput      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch [questions-file]",
	Short: "Answer a file of questions",
	Long: `Reads one question per line from the given file, answers each in its
own conversation, and writes JSON lines of {line, question, answer, error}.
Questions run concurrently up to --concurrency.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output file (default stdout)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "questions answered in parallel")
}

type batchResult struct {
	Line     int    `json:"line"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	client, registry, system, err := buildCollaborators()
	if err != nil {
		return err
	}

	questions, err := readQuestions(args[0])
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions found in %s", args[0])
	}

	out := os.Stdout
	if batchOutput != "" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	log := logging.Get(logging.CategoryAgent)
	results := make([]batchResult, len(questions))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(batchConcurrency)
	for i, q := range questions {
		g.Go(func() error {
			// Each question gets a fresh conversation.
			a := agent.New(cfg, client, registry, system, nil)
			answer, err := drain(a.ProcessInput(ctx, q.text))
			results[i] = batchResult{Line: q.line, Question: q.text, Answer: answer}
			if err != nil {
				// One failed question does not abort the batch.
				log.Warnf("question on line %d failed: %v", q.line, err)
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

type question struct {
	line int
	text string
}

func readQuestions(path string) ([]question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()

	var questions []question
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		questions = append(questions, question{line: n, text: text})
	}
	return questions, scanner.Err()
}

// drain collects a whole streamed answer.
func drain(out <-chan string, errc <-chan error) (string, error) {
	var sb strings.Builder
	for chunk := range out {
		sb.WriteString(chunk)
	}
	return sb.String(), <-errc
}
