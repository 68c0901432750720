package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"funcmerge/internal/pipeline"
)

var summaryHeader = []string{"file", "funcs", "merged", "thunks", "aliases", "status"}

// summaryRows turns results into table cells, one row per file.
func summaryRows(results []pipeline.FileResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		if res.File == "" {
			continue
		}
		st := res.Result.Stats
		status := "ok"
		switch {
		case res.Err != nil:
			status = "failed"
		case !res.Result.Changed:
			status = "unchanged"
		}
		funcs := strconv.Itoa(res.Before)
		if res.Err == nil && res.After != res.Before {
			funcs += " -> " + strconv.Itoa(res.After)
		}
		rows = append(rows, []string{
			res.File,
			funcs,
			strconv.Itoa(st.FunctionsMerged),
			strconv.Itoa(st.ThunksWritten),
			strconv.Itoa(st.AliasesWritten),
			status,
		})
	}
	return rows
}

// renderSummary prints an aligned table of per-file merge counts. Widths
// are measured in terminal cells so wide file names stay aligned.
func renderSummary(w io.Writer, results []pipeline.FileResult, colored bool) {
	rows := summaryRows(results)
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(summaryHeader))
	for i, h := range summaryHeader {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	header := color.New(color.Bold)
	paint := map[string]*color.Color{
		"ok":        color.New(color.FgGreen),
		"unchanged": color.New(color.FgHiBlack),
		"failed":    color.New(color.FgRed, color.Bold),
	}
	if !colored {
		header.DisableColor()
		for _, c := range paint {
			c.DisableColor()
		}
	}

	writeRow := func(cells []string, style func(i int, cell string) string) {
		var sb strings.Builder
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			padded := runewidth.FillRight(cell, widths[i])
			if i == len(cells)-1 {
				padded = cell
			}
			sb.WriteString(style(i, padded))
		}
		fmt.Fprintln(w, sb.String())
	}

	writeRow(summaryHeader, func(_ int, cell string) string { return header.Sprint(cell) })
	for _, row := range rows {
		writeRow(row, func(i int, cell string) string {
			if i == len(row)-1 {
				return paint[cell].Sprint(cell)
			}
			return cell
		})
	}
}

// renderSanity prints comparator violations found by --sanity.
func renderSanity(w io.Writer, results []pipeline.FileResult) {
	for _, res := range results {
		for batch, rep := range res.Result.Sanity {
			if rep.Valid {
				continue
			}
			for _, v := range rep.Violations {
				fmt.Fprintf(w, "%s: batch %d: %s comparison over %s (triple %d)\n",
					res.File, batch, v.Kind, strings.Join(v.Funcs, ", "), v.Triple)
			}
		}
	}
}
