package cmd

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// withSpinner shows suffix on stderr while fn runs. It is a no-op when output
// is not a terminal so piped output stays clean.
func withSpinner(enabled bool, suffix string, fn func() error) error {
	if !enabled {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()

	return fn()
}
