package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/app"
	"github.com/antoniostano/robotbuddy/internal/chat"
	"github.com/antoniostano/robotbuddy/internal/mode"
)

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Run one message through the pipeline and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		built, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := built.Cleanup(); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}()

		text := strings.Join(args, " ")
		out := cmd.OutOrStdout()
		if stream, _ := cmd.Flags().GetBool("stream"); stream {
			return askStream(ctx, built.Chat, text, out)
		}
		return askOnce(ctx, built.Chat, text, out)
	},
}

func init() {
	askCmd.Flags().Bool("stream", false, "print the reply as it is generated")
	rootCmd.AddCommand(askCmd)
}

func askOnce(ctx context.Context, svc *chat.Service, text string, out io.Writer) error {
	res, err := svc.Chat(ctx, chat.Request{UserText: text})
	fmt.Fprintln(out, res.Answer)
	printTrailer(out, res.Mode, res.FactsUsed)
	return err
}

func askStream(ctx context.Context, svc *chat.Service, text string, out io.Writer) error {
	relay := svc.Stream(ctx, text)
	defer relay.Close()

	for {
		ev, err := relay.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch ev.Kind {
		case chat.EventChunk:
			fmt.Fprint(out, ev.Chunk)
		case chat.EventDone:
			fmt.Fprintln(out)
			printTrailer(out, ev.Mode, ev.FactsUsed)
		case chat.EventError:
			fmt.Fprintln(out)
			fmt.Fprintln(out, ev.Error)
			printTrailer(out, ev.Mode, nil)
			return errors.New("inference backend unavailable")
		}
	}
}

func printTrailer(out io.Writer, m mode.Mode, facts []string) {
	fmt.Fprintf(out, "[mode=%s facts=%d]\n", m, len(facts))
	for _, f := range facts {
		fmt.Fprintf(out, "  - %s\n", f)
	}
}
