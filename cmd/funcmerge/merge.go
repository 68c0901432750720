package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"funcmerge/internal/config"
	"funcmerge/internal/mergefunc"
	"funcmerge/internal/observ"
	"funcmerge/internal/pipeline"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [flags] <file.mf|file.mfb>...",
	Short: "Merge identical functions",
	Long: `Merge structurally identical functions of every input module.

Each file is an independent module and is processed in parallel. Without
--out-dir or --in-place the single input is written to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: mergeExecution,
}

func init() {
	addMergeFlags(mergeCmd)
}

func addMergeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("aliases", false, "allow replacing functions by global aliases (overrides [target] global_aliases)")
	cmd.Flags().Int("sanity", 0, "check the comparator over the first N worklist entries of each batch")
	cmd.Flags().Bool("simplify-cfg", false, "remove trivial and unreachable blocks before merging")
	cmd.Flags().String("emit", "", "output format (text|msgpack)")
	cmd.Flags().StringP("out-dir", "o", "", "write merged modules into this directory")
	cmd.Flags().Bool("in-place", false, "overwrite the input files")
	cmd.Flags().Int("jobs", 0, "files processed at once (0 = GOMAXPROCS)")
	cmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
}

func mergeExecution(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyMergeFlags(cmd, &cfg); err != nil {
		return err
	}
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return err
	}
	inPlace, err := cmd.Flags().GetBool("in-place")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	output, toStdout, err := outputFor(cmd, args, outDir, inPlace, cfg.Output.Format)
	if err != nil {
		return err
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer func() { cleanup(err) }()

	timer := observ.NewTimer()
	req := &pipeline.Request{
		Files: args,
		Jobs:  jobs,
		Merge: mergefunc.Options{
			Target:           cfg.Target,
			SanityCheckLimit: cfg.Merge.SanityCheck,
		},
		SimplifyCFG: cfg.Merge.SimplifyCFG,
		Format:      cfg.Output.Format,
		Output:      output,
		Timer:       timer,
	}

	var results []pipeline.FileResult
	var runErr error
	if shouldUseTUI(mode, toStdout) && !quiet {
		results, runErr = runMergeWithUI(cmd.Context(), "merging functions", req)
	} else {
		results, runErr = pipeline.Run(cmd.Context(), req)
	}

	if !quiet {
		colored, cerr := useColor(cmd, os.Stderr)
		if cerr != nil {
			return cerr
		}
		renderSummary(cmd.ErrOrStderr(), results, colored)
		renderSanity(cmd.ErrOrStderr(), results)
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return runErr
}

// loadConfig reads --config or searches for funcmerge.toml from the working
// directory. No file means defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, _, err := config.Load(".")
	return cfg, err
}

// applyMergeFlags lets explicitly set flags override the config file.
func applyMergeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("aliases") {
		if cfg.Target.GlobalAliases, err = flags.GetBool("aliases"); err != nil {
			return err
		}
	}
	if flags.Changed("sanity") {
		if cfg.Merge.SanityCheck, err = flags.GetInt("sanity"); err != nil {
			return err
		}
		if cfg.Merge.SanityCheck < 0 {
			return fmt.Errorf("--sanity must not be negative")
		}
	}
	if flags.Changed("simplify-cfg") {
		if cfg.Merge.SimplifyCFG, err = flags.GetBool("simplify-cfg"); err != nil {
			return err
		}
	}
	if flags.Changed("emit") {
		if cfg.Output.Format, err = flags.GetString("emit"); err != nil {
			return err
		}
		if err := config.ValidateFormat(cfg.Output.Format); err != nil {
			return fmt.Errorf("--emit: %w", err)
		}
	}
	return nil
}

// outputFor picks where merged modules go. The bool result reports whether
// stdout carries module output.
func outputFor(cmd *cobra.Command, files []string, outDir string, inPlace bool, format string) (func(string) (io.WriteCloser, error), bool, error) {
	switch {
	case outDir != "" && inPlace:
		return nil, false, errors.New("--out-dir and --in-place are mutually exclusive")
	case inPlace:
		for _, file := range files {
			if got := pipeline.FormatForPath(file, format); got != format {
				return nil, false, fmt.Errorf("--in-place would write %s output into %s", format, file)
			}
		}
		return func(file string) (io.WriteCloser, error) {
			return newReplaceFile(file)
		}, false, nil
	case outDir != "":
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, false, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := checkDistinctOutputs(outDir, files, format); err != nil {
			return nil, false, err
		}
		return func(file string) (io.WriteCloser, error) {
			return newReplaceFile(pipeline.OutputPath(outDir, file, format))
		}, false, nil
	default:
		if len(files) > 1 {
			return nil, false, errors.New("several inputs need --out-dir or --in-place")
		}
		out := cmd.OutOrStdout()
		return func(string) (io.WriteCloser, error) {
			return nopWriteCloser{out}, nil
		}, true, nil
	}
}

func checkDistinctOutputs(outDir string, files []string, format string) error {
	seen := make(map[string]string, len(files))
	for _, file := range files {
		out := pipeline.OutputPath(outDir, file, format)
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("%s and %s would both be written to %s", prev, file, out)
		}
		seen[out] = file
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// replaceFile writes to a temporary file next to path and renames it over
// path on Close. Abort drops the temporary file and leaves path alone.
type replaceFile struct {
	*os.File
	path string
}

func newReplaceFile(path string) (*replaceFile, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &replaceFile{File: tmp, path: path}, nil
}

func (f *replaceFile) Close() error {
	if err := f.Chmod(0o644); err != nil {
		f.File.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), f.path); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

func (f *replaceFile) Abort() error {
	err := f.File.Close()
	if rerr := os.Remove(f.Name()); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		err = errors.Join(err, rerr)
	}
	return err
}
