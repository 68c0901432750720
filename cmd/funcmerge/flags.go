package main

import (
	"fmt"
	"os"
	"strings"
)

// readChoice matches value, case-insensitively, against choices. An empty
// value selects the first choice.
func readChoice[T ~string](flag, value string, choices ...T) (T, error) {
	v := strings.TrimSpace(strings.ToLower(value))
	if v == "" {
		return choices[0], nil
	}
	names := make([]string, len(choices))
	for i, c := range choices {
		if string(c) == v {
			return c, nil
		}
		names[i] = string(c)
	}
	var zero T
	return zero, errInvalidChoice(flag, value, strings.Join(names, "|"))
}

func errInvalidChoice(flag, value, choices string) error {
	return fmt.Errorf("invalid %s value %q (expected %s)", flag, value, choices)
}

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	return readChoice("--ui", value, uiModeAuto, uiModeOn, uiModeOff)
}

// shouldUseTUI reports whether the progress view should run. It never
// shares stdout with module output.
func shouldUseTUI(mode uiMode, stdoutIsOutput bool) bool {
	if stdoutIsOutput {
		return false
	}
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	default:
		return isTerminal(os.Stdout)
	}
}

type reportFormat string

const (
	reportPretty reportFormat = "pretty"
	reportJSON   reportFormat = "json"
)

func readReportFormat(value string) (reportFormat, error) {
	return readChoice("--format", value, reportPretty, reportJSON)
}
