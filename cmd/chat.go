package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grounded-chat/internal/pipeline"
)

var (
	chatID   string
	chatUser string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run one chat turn from the terminal",
	Long:  "Runs the full pipeline for a single message and streams the answer to stdout. Stage progress goes to stderr.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		id := chatID
		if id == "" {
			id = uuid.NewString()
		}

		events := env.Pipeline.Run(ctx, pipeline.TurnRequest{
			ChatID:  id,
			UserID:  chatUser,
			Content: strings.Join(args, " "),
		})

		var failed bool
		for ev := range events {
			switch ev.Type {
			case pipeline.EventStatus:
				fmt.Fprintf(os.Stderr, "· %s\n", ev.Message)
			case pipeline.EventSearch:
				fmt.Fprintf(os.Stderr, "· %d fragments retrieved\n", len(ev.Results))
			case pipeline.EventPerspectiveAnalysis:
				fmt.Fprintf(os.Stderr, "· chose %s (confidence %.2f)\n", ev.Choice, *ev.Confidence)
			case pipeline.EventFactCheck:
				fmt.Fprintf(os.Stderr, "· %d claims checked\n", len(ev.Verdicts))
			case pipeline.EventTool:
				fmt.Fprintf(os.Stderr, "· tool %s: %s\n", ev.ToolName, ev.ToolStatus)
			case pipeline.EventDelta:
				fmt.Print(ev.Delta)
			case pipeline.EventFinish:
				fmt.Println()
				fmt.Fprintf(os.Stderr, "· chat %s, response %s\n", id, ev.ResponseID)
			case pipeline.EventError:
				failed = true
				fmt.Fprintln(os.Stderr, ev.Message)
			}
		}

		if failed {
			return eris.New("turn failed")
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatID, "chat", "", "chat id to continue (default: new chat)")
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id")
	rootCmd.AddCommand(chatCmd)
}
