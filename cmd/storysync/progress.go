package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"storysync/internal/storyboard"
)

// progressRenderer writes generation progress. On a terminal it rewrites a
// single status line; otherwise each update becomes its own line so the
// output stays readable in logs and pipes.
type progressRenderer struct {
	out  io.Writer
	tty  bool
	last string
	live bool
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		tty = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return &progressRenderer{out: out, tty: tty}
}

func (r *progressRenderer) Update(p storyboard.Progress) {
	line := fmt.Sprintf("Scenes %d/%d (%s)", p.Completed, p.Total, p.Status)
	if line == r.last {
		return
	}
	r.last = line
	if r.tty {
		fmt.Fprintf(r.out, "\r\033[K%s", line)
		r.live = true
		return
	}
	fmt.Fprintln(r.out, line)
}

func (r *progressRenderer) Note(message string) {
	r.endLine()
	fmt.Fprintln(r.out, message)
}

// endLine terminates a live status line before regular output resumes.
func (r *progressRenderer) endLine() {
	if r.live {
		fmt.Fprintln(r.out)
		r.live = false
	}
}
