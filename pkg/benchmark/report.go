package benchmark

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/xuri/excelize/v2"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

// MetricRoots are the per-document metrics averaged into a report row.
var MetricRoots = []string{
	"rouge1_fmeasure",
	"rouge2_fmeasure",
	"rougeL_fmeasure",
	"extraction_f1",
	"category_accuracy",
}

// Row is one model's averaged scores.
type Row struct {
	RunID     string
	Model     string
	Documents int
	// Averages is keyed by metric root. A root with no samples is absent.
	Averages map[string]float64
}

// Report averages each run's per-document metrics, best ROUGE-1 first.
func Report(ctx context.Context, store *tracking.Store, experiment string) ([]Row, error) {
	runs, err := store.SearchRuns(ctx, experiment)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, summarize(run))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Averages[MetricRoots[0]] > rows[j].Averages[MetricRoots[0]]
	})
	return rows, nil
}

func summarize(run tracking.RunInfo) Row {
	row := Row{RunID: run.ID, Model: run.Name, Averages: map[string]float64{}}
	docs := map[string]struct{}{}
	for _, root := range MetricRoots {
		prefix := root + "_doc_"
		var sum float64
		var n int
		for key, v := range run.Metrics {
			if id, ok := strings.CutPrefix(key, prefix); ok {
				sum += v
				n++
				docs[id] = struct{}{}
			}
		}
		if n > 0 {
			row.Averages[root] = sum / float64(n)
		}
	}
	row.Documents = len(docs)
	return row
}

func header() []string {
	h := []string{"model", "documents"}
	for _, root := range MetricRoots {
		h = append(h, "avg_"+root)
	}
	return h
}

func (r Row) cells() []string {
	c := []string{r.Model, strconv.Itoa(r.Documents)}
	for _, root := range MetricRoots {
		if v, ok := r.Averages[root]; ok {
			c = append(c, strconv.FormatFloat(v, 'f', 4, 64))
		} else {
			c = append(c, "-")
		}
	}
	return c
}

// WriteTable renders rows as a markdown table.
func WriteTable(w io.Writer, rows []Row) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Behavior: tw.Behavior{TrimSpace: tw.Off},
		}),
		tablewriter.WithHeader(header()),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
	for _, r := range rows {
		if err := table.Append(r.cells()); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const reportSheet = "Benchmark"

// WriteXLSX saves rows to a workbook at path. Scores are written as numbers.
func WriteXLSX(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(reportSheet); err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	if index, err := f.GetSheetIndex(reportSheet); err == nil {
		f.SetActiveSheet(index)
	}
	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(reportSheet, cell, v)
	}
	for i, h := range header() {
		if err := set(i+1, 1, h); err != nil {
			return err
		}
	}
	for i, r := range rows {
		line := i + 2
		if err := set(1, line, r.Model); err != nil {
			return err
		}
		if err := set(2, line, r.Documents); err != nil {
			return err
		}
		for j, root := range MetricRoots {
			var v any = "-"
			if avg, ok := r.Averages[root]; ok {
				v = avg
			}
			if err := set(j+3, line, v); err != nil {
				return err
			}
		}
	}
	_ = f.SetColWidth(reportSheet, "A", "A", 24)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
