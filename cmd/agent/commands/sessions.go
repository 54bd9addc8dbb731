package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kite-agent/lib/serviceutil"
	"kite-agent/lib/session"
)

var (
	dbPath   string
	pageSize int
)

func init() {
	sessionsCmd.PersistentFlags().StringVar(&dbPath, "db", "kite.db", "session database path")
	sessionsListCmd.Flags().IntVar(&pageSize, "page-size", 50, "sessions per page")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDelCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the local session database.",
}

func openStore() *session.Store {
	store, err := session.Open(dbPath)
	if err != nil {
		serviceutil.Fatal("failed to open session database", err)
	}
	return store
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts and when they were last used.",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		ctx := cmd.Context()
		total, err := store.Len(ctx)
		if err != nil {
			serviceutil.Fatal("failed to count sessions", err)
		}

		for index := 0; ; index++ {
			page, err := store.List(ctx, index, pageSize)
			if err != nil {
				serviceutil.Fatal("failed to list sessions", err)
			}
			if len(page) == 0 {
				break
			}
			for _, sess := range page {
				fmt.Printf("%s\tlast used %s\n",
					sess.Account, sess.LastUpdate.Format("2006-01-02 15:04:05"))
			}
		}
		fmt.Fprintf(os.Stderr, "%d session(s)\n", total)
	},
}

var sessionsDelCmd = &cobra.Command{
	Use:   "del <account>",
	Short: "Delete the session for one account.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			serviceutil.Fatal("failed to delete session", err)
		}
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every stored session.",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			serviceutil.Fatal("failed to clear sessions", err)
		}
		fmt.Println("cleared")
	},
}
