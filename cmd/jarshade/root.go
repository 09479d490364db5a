package main

import (
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	verbose bool
	cfgFile string

	logOnce    sync.Once
	syncStderr *syncWriter
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "jarshade",
		Short: "Relocate Java packages inside JAR archives",
		Long: `jarshade rewrites class files and entry names so that a bundled copy of a
library lives under a private package prefix.

By default every type under org/objectweb/asm/ is moved to
com/nasller/asm/libs/, along with every type an archive defines. Each
input IN.jar is written to IN-repackaged.jar in the output directory.

Settings are read from jarshade.yaml in the working directory or the user
config directory, then JARSHADE_* environment variables, then flags.`,
		Example: `  jarshade shade asm-9.7.jar asm-tree-9.7.jar
  jarshade shade --target shaded/ --root com/google/gson/ -o build/libs libs/
  jarshade config`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./jarshade.yaml or $XDG_CONFIG_HOME/jarshade/jarshade.yaml)")

	root.AddCommand(newShadeCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

// logWriter returns stderr guarded by a mutex. slog.Logger.With hands out
// copies of the charm logger, each with its own lock, and concurrent
// archives log through those copies to the same writer.
func (a *app) logWriter() io.Writer {
	a.logOnce.Do(func() {
		a.syncStderr = &syncWriter{w: a.stderr}
	})
	return a.syncStderr
}

// syncWriter serializes writes to w.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// logger returns a structured logger writing to stderr.
func (a *app) logger() *slog.Logger {
	level := log.InfoLevel
	if a.verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.logWriter(), log.Options{
		Prefix:          "jarshade",
		Level:           level,
		ReportTimestamp: a.verbose,
	})
	return slog.New(handler)
}
