// Command funcmerge merges structurally identical functions of IR modules.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"funcmerge/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "funcmerge",
	Short:         "Fold identical functions of IR modules",
	Long:          "funcmerge finds functions with identical bodies and keeps one copy, turning the others into aliases or thunks.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.Version = version.Colored(version.Current().Version)

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show per-stage timings")
	flags.String("config", "", "path to funcmerge.toml (default: search upward from the working directory)")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "ring", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", time.Duration(0), "emit a heartbeat event at this interval (0 disables)")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go execution trace to this file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// useColor resolves the --color flag for out.
func useColor(cmd *cobra.Command, out *os.File) (bool, error) {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, err
	}
	mode, err := readChoice("--color", value, uiModeAuto, uiModeOn, uiModeOff)
	if err != nil {
		return false, err
	}
	if mode == uiModeAuto {
		return isTerminal(out), nil
	}
	return mode == uiModeOn, nil
}
