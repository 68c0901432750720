package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"funcmerge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build metadata",
	Args:  cobra.NoArgs,
	RunE:  versionExecution,
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("message", false, "include git commit message")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "show all build metadata")
	versionCmd.Flags().String("format", string(reportPretty), "output format (pretty|json)")
}

// versionFields selects the optional metadata lines.
type versionFields struct {
	hash, message, date bool
}

func versionExecution(cmd *cobra.Command, _ []string) error {
	var fields versionFields
	for name, dst := range map[string]*bool{"hash": &fields.hash, "message": &fields.message, "date": &fields.date} {
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return err
	}
	if full {
		fields = versionFields{hash: true, message: true, date: true}
	}
	value, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := readReportFormat(value)
	if err != nil {
		return err
	}

	info := selectVersionFields(version.Current(), fields)
	if format == reportJSON {
		return renderVersionJSON(cmd.OutOrStdout(), info)
	}
	renderVersionPretty(cmd.OutOrStdout(), info)
	return nil
}

// selectVersionFields blanks unselected fields and marks selected but
// unknown ones.
func selectVersionFields(info version.Info, fields versionFields) version.Info {
	pick := func(on bool, s string) string {
		switch {
		case !on:
			return ""
		case s == "":
			return "unknown"
		default:
			return s
		}
	}
	return version.Info{
		Version:    info.Version,
		GitCommit:  pick(fields.hash, info.GitCommit),
		GitMessage: pick(fields.message, info.GitMessage),
		BuildDate:  pick(fields.date, info.BuildDate),
	}
}

func renderVersionPretty(out io.Writer, info version.Info) {
	fmt.Fprintf(out, "funcmerge %s\n", version.Colored(info.Version))
	for _, line := range [][2]string{
		{"commit: ", info.GitCommit},
		{"message:", info.GitMessage},
		{"built:  ", info.BuildDate},
	} {
		if line[1] != "" {
			fmt.Fprintf(out, "%s %s\n", line[0], line[1])
		}
	}
}

func renderVersionJSON(out io.Writer, info version.Info) error {
	payload := struct {
		Tool string `json:"tool"`
		version.Info
	}{Tool: "funcmerge", Info: info}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
