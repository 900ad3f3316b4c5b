package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "grounded-chat",
	Short: "Retrieval-grounded chat assistant",
	Long:  "Answers questions strictly from an embedded document index: retrieves evidence, drafts critic and optimist perspectives, arbitrates, fact-checks, and streams a cited answer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
