package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"funcmerge/internal/prof"
)

// setupProfiling starts the profilers named by the persistent profiling
// flags. The returned cleanup stops them and reports write errors on stderr.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	var paths prof.Paths
	for name, dst := range map[string]*string{
		"cpu-profile":   &paths.CPU,
		"mem-profile":   &paths.Mem,
		"runtime-trace": &paths.Trace,
	} {
		v, err := flags.GetString(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	if paths == (prof.Paths{}) {
		return func() {}, nil
	}
	session, err := prof.Start(paths)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := session.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
	}, nil
}
