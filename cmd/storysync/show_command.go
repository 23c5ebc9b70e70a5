package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storysync/internal/storyboard"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Print a storyboard without following generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			doc, err := sess.Client.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch storyboard: %w", err)
			}
			renderDocument(cmd.OutOrStdout(), doc)
			return nil
		},
	}
}

func renderDocument(out io.Writer, doc *storyboard.Document) {
	if doc == nil {
		fmt.Fprintln(out, "No storyboard loaded.")
		return
	}

	name := doc.Name
	if name == "" {
		name = "(untitled)"
	}
	fmt.Fprintf(out, "%s  [%s]\n", name, doc.ID)
	if doc.Generating() {
		progress := doc.Progress()
		fmt.Fprintf(out, "Generation in progress: %d/%d scenes\n", progress.Completed, progress.Total)
	}
	if len(doc.Clips) == 0 {
		fmt.Fprintln(out, "No clips.")
		return
	}

	rows := make([][]string, 0, len(doc.Clips))
	for _, clip := range doc.Clips {
		content := "pending"
		switch {
		case strings.TrimSpace(clip.Content) != "":
			content = "inline"
		case clip.ArtifactID != "":
			content = "artifact"
		}
		rows = append(rows, []string{
			strconv.Itoa(clip.Order + 1),
			clip.Name,
			content,
		})
	}
	fmt.Fprintln(out, renderClipTable([]string{"#", "Name", "Content"}, rows))
}
