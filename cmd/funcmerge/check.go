package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"funcmerge/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file>...",
	Short: "Validate modules and list merge candidates",
	Long: `Validate every module and report the functions a merge would compare:
groups sharing a structural hash and, within them, groups that are equal.
Modules are not changed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkExecution,
}

func init() {
	checkCmd.Flags().Int("jobs", 0, "files processed at once (0 = GOMAXPROCS)")
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type checkPayload struct {
	File      string     `json:"file"`
	Functions int        `json:"functions"`
	Buckets   [][]string `json:"buckets"`
	Equal     [][]string `json:"equal"`
	Error     string     `json:"error,omitempty"`
}

func checkExecution(cmd *cobra.Command, args []string) (err error) {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	report, err := readReportFormat(format)
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

	results, runErr := pipeline.Check(cmd.Context(), args, jobs)
	if report == reportJSON {
		if err := renderCheckJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		return runErr
	}
	colored, err := useColor(cmd, os.Stdout)
	if err != nil {
		return err
	}
	renderCheckPretty(cmd.OutOrStdout(), results, colored)
	return runErr
}

func renderCheckJSON(w io.Writer, results []pipeline.CheckResult) error {
	payload := make([]checkPayload, 0, len(results))
	for _, res := range results {
		p := checkPayload{
			File:      res.File,
			Functions: res.Functions,
			Buckets:   nonNil(res.Buckets),
			Equal:     nonNil(res.Equal),
		}
		if res.Err != nil {
			p.Error = res.Err.Error()
		}
		payload = append(payload, p)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func nonNil(groups [][]string) [][]string {
	if groups == nil {
		return [][]string{}
	}
	return groups
}

func renderCheckPretty(w io.Writer, results []pipeline.CheckResult, colored bool) {
	name := color.New(color.Bold)
	bad := color.New(color.FgRed, color.Bold)
	equal := color.New(color.FgGreen)
	if !colored {
		name.DisableColor()
		bad.DisableColor()
		equal.DisableColor()
	}
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "%s: %s %v\n", name.Sprint(res.File), bad.Sprint("error:"), res.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %d functions, %d hash buckets, %d equal groups\n",
			name.Sprint(res.File), res.Functions, len(res.Buckets), len(res.Equal))
		for _, bucket := range res.Buckets {
			fmt.Fprintf(w, "  bucket: %s\n", atNames(bucket))
		}
		for _, group := range res.Equal {
			fmt.Fprintf(w, "  %s %s\n", equal.Sprint("equal:"), atNames(group))
		}
	}
}

func atNames(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "@" + n
	}
	return strings.Join(out, " ")
}
