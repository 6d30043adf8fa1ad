package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/chatkeep/internal/db"
	"github.com/stupiduntilnot/chatkeep/internal/render"
	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

const prompt = "> "

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (Enter sends, /clear wipes history, /quit exits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context())
		},
	}
}

func (a *app) chat(ctx context.Context) error {
	if a.store.Ready() {
		if _, err := a.session.Replay(ctx, a.renderer, a.out); err != nil {
			a.logger.Warn("failed to replay history", zap.Error(err))
		}
	}

	lines := bufio.NewScanner(a.in)
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprint(a.out, prompt)
	for lines.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(lines.Text())
		switch line {
		case "/quit", "/exit":
			return nil
		case "/clear":
			if _, err := a.session.Clear(ctx, a.confirm(lines)); err != nil {
				fmt.Fprintf(a.out, "could not clear history: %v\n", err)
			}
			fmt.Fprint(a.out, prompt)
			continue
		}
		if !a.session.InputEnabled() {
			continue
		}
		if _, err := a.session.Submit(ctx, line); err != nil && !errors.Is(err, turn.ErrEmptySubmission) {
			return err
		}
		fmt.Fprint(a.out, prompt)
	}
	return lines.Err()
}

// confirm asks on the shared line reader so the answer is not consumed as a
// question.
func (a *app) confirm(lines *bufio.Scanner) func() bool {
	return func() bool {
		fmt.Fprint(a.out, "Clear all chat history? [y/N] ")
		if !lines.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(lines.Text()))
		return answer == "y" || answer == "yes"
	}
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.session.Submit(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if out.Failed {
				return out.Err
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.session.Replay(cmd.Context(), a.renderer, a.out)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(a.out, "no history")
			}
			return nil
		},
	}
}

func newTranscriptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transcript",
		Short: "Print the history as it is sent to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(a.projector.Transcript(cmd.Context()))
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored turns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := a.confirm(bufio.NewScanner(a.in))
			if yes {
				confirm = nil
			}
			cleared, err := a.session.Clear(cmd.Context(), confirm)
			if err != nil {
				return err
			}
			if cleared {
				fmt.Fprintln(a.out, "history cleared")
			} else {
				fmt.Fprintln(a.out, "nothing changed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the answer endpoint is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.endpoint == nil {
				return fmt.Errorf("ping is only supported for the %q provider", "endpoint")
			}
			status, err := a.endpoint.Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: HTTP %d\n", a.cfg.EndpointURL, status)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the conversation as a standalone HTML page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			turns, err := a.projector.Replay(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := render.NewHTML().Document("chatkeep", turns)
			if err != nil {
				return err
			}
			if path == "" || path == "-" {
				_, err = io.WriteString(a.out, doc)
				return err
			}
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(a.out, "exported %d turns to %s\n", len(turns), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "html", "-", "output file, - for stdout")
	return cmd
}

var statEvents = []string{
	db.EventTurnAppended,
	db.EventRetentionTrimmed,
	db.EventRetentionFailed,
	db.EventHistoryCleared,
	db.EventCycleStarted,
	db.EventCycleSettled,
	db.EventAnswerFailed,
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored turn and event counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			turns, err := a.store.Count(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "database\t%s\n", a.cfg.DBPath)
			fmt.Fprintf(w, "turns\t%d/%d\n", turns, a.cfg.RetentionCap)
			for _, event := range statEvents {
				n, err := a.store.CountEvents(event)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", event, n)
			}
			return w.Flush()
		},
	}
}
