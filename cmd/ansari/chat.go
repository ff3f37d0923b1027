package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ansari/internal/agent"
	"ansari/internal/store"
)

var chatPersist bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts a read-eval-print chat session on stdin/stdout. The answer
streams as it is generated. With --persist the conversation is stored as a
thread and can be revisited with "ansari threads".`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatPersist, "persist", false, "store the conversation in the thread database")
}

func runChat(cmd *cobra.Command, args []string) error {
	client, registry, system, err := buildCollaborators()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var msgLog agent.MessageLogger
	if chatPersist {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
		thread, err := st.CreateThread(ctx, "chat "+time.Now().Format("2006-01-02 15:04"))
		if err != nil {
			return err
		}
		fmt.Printf("thread %s\n", thread.ID)
		msgLog = st.Logger(thread.ID)
	}

	a := agent.New(cfg, client, registry, system, msgLog)

	fmt.Println("Assalamu alaykum. Ask me anything about Islam. Type /exit to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}

		out, errc := a.ProcessInput(ctx, line)
		for chunk := range out {
			fmt.Print(chunk)
		}
		fmt.Println()
		if err := <-errc; err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
