package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/jarshade"
	"github.com/meigma/jarshade/cache/disk"
	"github.com/meigma/jarshade/internal/config"
)

func newShadeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shade [flags] INPUT...",
		Short: "Relocate packages in one or more archives",
		Long: `Shade each INPUT archive into OUT/<name>-repackaged.jar.

A directory INPUT expands to the *.jar files directly inside it, skipping
earlier -repackaged.jar outputs. Archives are shaded independently: one
failure does not stop the others, but the command exits non-zero.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShade(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringP("out", "o", ".", "output directory")
	f.String("target", jarshade.DefaultTargetPrefix, "prefix prepended to relocated names")
	f.StringSlice("root", []string{jarshade.DefaultRoot}, "package prefix always relocated (repeatable)")
	f.String("resources", "roots", "resources to rename: roots or all")
	f.Int("workers", 0, "entry rewrite workers per archive (0 uses all CPUs)")
	f.IntP("jobs", "j", 2, "archives shaded concurrently")
	f.Int64("max-memory", jarshade.DefaultMaxInFlightBytes, "bytes of entry data buffered per archive (0 is unbounded)")
	f.Int("level", -1, "deflate level for rewritten entries (-2 to 9)")
	f.String("cache-dir", "", "directory for cached outputs (empty disables caching)")
	f.Int64("cache-limit", 0, "maximum cache size in bytes (0 is unbounded)")
	return cmd
}

func (a *app) runShade(cmd *cobra.Command, args []string) error {
	cfg, used, err := config.Load(config.LoadOptions{
		ConfigFile: a.cfgFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	logger := a.logger()
	if used != "" {
		logger.Debug("loaded config", "file", used)
	}

	shadeCfg, err := cfg.Shade()
	if err != nil {
		return err
	}

	opts := []jarshade.Option{
		jarshade.WithLogger(logger),
		jarshade.WithWorkers(cfg.Workers),
		jarshade.WithMaxInFlightBytes(cfg.MaxInFlightBytes),
		jarshade.WithCompressionLevel(cfg.CompressionLevel),
		jarshade.WithArchiveConcurrency(cfg.ArchiveConcurrency),
	}
	if cfg.Cache.Dir != "" {
		c, err := disk.New(cfg.Cache.Dir, disk.WithMaxBytes(cfg.Cache.MaxBytes))
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		opts = append(opts, jarshade.WithCache(c))
	}
	if a.verbose {
		opts = append(opts, jarshade.WithProgress(func(ev jarshade.ProgressEvent) {
			switch ev.Stage {
			case jarshade.StageDone, jarshade.StageCached:
				logger.Debug("archive "+ev.Stage.String(), "archive", ev.Archive, "entries", ev.EntriesTotal)
			}
		}))
	}

	s, err := jarshade.New(shadeCfg, opts...)
	if err != nil {
		return err
	}

	inputs, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no archives found in %s", strings.Join(args, ", "))
	}

	results, err := s.ShadeAll(cmd.Context(), inputs, cfg.OutDir)
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Descriptor.Digest == "" {
			continue
		}
		note := ""
		if r.Cached {
			note = " (cached)"
		}
		fmt.Fprintf(out, "%s -> %s %s renamed=%d%s\n",
			r.Input, r.Output, r.Descriptor.Digest, r.Stats.Renamed, note)
	}
	return err
}

// expandInputs replaces directory arguments with the archives inside them.
// Other arguments pass through unchanged so a missing file is reported by
// the shader with the rest of the per-archive errors.
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.jar"))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", arg, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if strings.HasSuffix(m, "-repackaged.jar") {
				continue
			}
			inputs = append(inputs, m)
		}
	}
	return inputs, nil
}
