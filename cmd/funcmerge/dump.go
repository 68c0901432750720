package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"funcmerge/internal/config"
	"funcmerge/internal/ir"
	"funcmerge/internal/pipeline"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] <file>",
	Short: "Print a module",
	Long:  "Load a module in either form and write it to stdout, by default as text. Useful for reading .mfb files.",
	Args:  cobra.ExactArgs(1),
	RunE:  dumpExecution,
}

func init() {
	dumpCmd.Flags().String("emit", config.FormatText, "output format (text|msgpack)")
	dumpCmd.Flags().Bool("simplify-cfg", false, "simplify control flow before printing")
	dumpCmd.Flags().Bool("no-validate", false, "print modules that fail validation")
}

func dumpExecution(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("emit")
	if err != nil {
		return err
	}
	if err := config.ValidateFormat(format); err != nil {
		return fmt.Errorf("--emit: %w", err)
	}
	simplify, err := cmd.Flags().GetBool("simplify-cfg")
	if err != nil {
		return err
	}
	noValidate, err := cmd.Flags().GetBool("no-validate")
	if err != nil {
		return err
	}

	m, err := pipeline.LoadModule(args[0])
	if err != nil {
		return err
	}
	if !noValidate {
		if err := ir.Validate(m); err != nil {
			return fmt.Errorf("%s: invalid module: %w", args[0], err)
		}
	}
	if simplify {
		for _, f := range m.Definitions() {
			ir.SimplifyCFG(f)
		}
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	if err := pipeline.WriteModule(out, m, format); err != nil {
		return err
	}
	return out.Flush()
}
