package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ansari/internal/store"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect stored conversation threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		threads, err := st.ListThreads(cmd.Context())
		if err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("no threads")
			return nil
		}
		for _, t := range threads {
			name := t.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%s  %s  %s\n", t.ID, t.CreatedAt.Format("2006-01-02 15:04"), name)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show [thread-id]",
	Short: "Print a thread's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		history, err := st.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, m := range history {
			label := string(m.Role)
			if m.ToolName != "" {
				label += " (" + m.ToolName + ")"
			}
			fmt.Printf("[%s] %s\n", label, m.PlainText())
		}
		return nil
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete [thread-id]",
	Short: "Delete a thread and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.DeleteThread(cmd.Context(), args[0])
	},
}

func init() {
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
}
