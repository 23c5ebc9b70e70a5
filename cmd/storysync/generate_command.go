package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storysync/internal/orchestrator"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var scenes int
	var provider string
	var model string

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a new storyboard from a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(args[0])
			if prompt == "" {
				return errors.New("prompt must not be empty")
			}

			sess, err := ctx.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sess.Orchestrator.Generate(runCtx, orchestrator.GenerateRequest{
				Prompt:    prompt,
				Provider:  provider,
				Model:     model,
				NumScenes: scenes,
			}); err != nil {
				return fmt.Errorf("start generation: %w", err)
			}

			return watchGeneration(runCtx, cmd.OutOrStdout(), sess.Orchestrator)
		},
	}

	cmd.Flags().IntVarP(&scenes, "scenes", "n", 0, "Number of scenes to generate (0 lets the backend decide)")
	cmd.Flags().StringVar(&provider, "provider", "", "Generation provider override")
	cmd.Flags().StringVar(&model, "model", "", "Generation model override")
	return cmd
}

func newOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <document-id>",
		Short: "Load a storyboard and follow any generation still in flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sess.Orchestrator.Load(runCtx, args[0]); err != nil {
				return fmt.Errorf("load storyboard: %w", err)
			}

			out := cmd.OutOrStdout()
			if !sess.Orchestrator.State().Busy() {
				renderDocument(out, sess.Orchestrator.Document())
				return nil
			}
			fmt.Fprintln(out, "Generation in progress, following updates...")
			return watchGeneration(runCtx, out, sess.Orchestrator)
		},
	}
}

// watchGeneration follows orchestrator events until the job reaches a
// terminal state, then prints the resulting document.
func watchGeneration(ctx context.Context, out io.Writer, orch *orchestrator.Orchestrator) error {
	renderer := newProgressRenderer(out)
	done := make(chan orchestrator.State, 1)

	cancel := orch.Subscribe(func(evt orchestrator.Event) {
		switch evt.Kind {
		case orchestrator.EventProgress:
			renderer.Update(evt.Progress)
		case orchestrator.EventUserError:
			renderer.Note(evt.Message)
		case orchestrator.EventStateChanged:
			if !evt.State.Busy() {
				select {
				case done <- evt.State:
				default:
				}
			}
		}
	})
	defer cancel()

	// The terminal transition may have happened before the subscription.
	if state := orch.State(); !state.Busy() {
		select {
		case done <- state:
		default:
		}
	}

	var final orchestrator.State
	select {
	case final = <-done:
	case <-ctx.Done():
		renderer.endLine()
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := orch.FlushPendingSave(flushCtx); err != nil {
			fmt.Fprintf(out, "Warning: pending changes were not saved: %v\n", err)
		}
		return ctx.Err()
	}

	renderer.endLine()
	doc := orch.Document()
	switch final {
	case orchestrator.StateCompleted:
		fmt.Fprintln(out, "Generation completed.")
	case orchestrator.StateCompletedWithErrors:
		fmt.Fprintln(out, "Generation completed with errors.")
	case orchestrator.StateFailed:
		renderDocument(out, doc)
		return errors.New("generation failed")
	default:
		fmt.Fprintf(out, "Generation stopped (%s).\n", final)
	}
	renderDocument(out, doc)
	return nil
}
