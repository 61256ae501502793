package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"nixmate/internal/history"
	"nixmate/internal/metrics"
	"nixmate/internal/operation"
	pkgstrings "nixmate/pkg/strings"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as tables and status lines
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON formats output as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML converted from JSON
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats contains all valid output format values.
var ValidOutputFormats = []OutputFormat{
	OutputFormatTable,
	OutputFormatJSON,
	OutputFormatYAML,
}

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, json, yaml)", format)
	}
}

const (
	descriptionWidth = 60
	messageWidth     = 70
	timeLayout       = "2006-01-02 15:04:05"
)

// PrinterOptions configures a Printer.
type PrinterOptions struct {
	Format    OutputFormat
	NoHeaders bool
	Quiet     bool
	NoColor   bool
}

// Printer writes results to an output stream.
type Printer struct {
	out  io.Writer
	opts PrinterOptions
}

// NewPrinter creates a Printer writing to out. An empty format means table.
func NewPrinter(out io.Writer, opts PrinterOptions) *Printer {
	if opts.Format == "" {
		opts.Format = OutputFormatTable
	}
	return &Printer{out: out, opts: opts}
}

// Result prints an operation result. Failures are printed too; the caller
// decides the exit code with ExitCodeFor.
func (p *Printer) Result(res operation.Result) error {
	if p.opts.Format != OutputFormatTable {
		return p.encode(res)
	}

	if !res.Success {
		p.failure(res)
		return nil
	}

	if res.Data != nil {
		switch {
		case len(res.Data.Generations) > 0:
			p.renderGenerations(res.Data.Generations)
		case len(res.Data.Packages) > 0:
			p.renderPackages(res.Data.Packages)
		case len(res.Data.Changes) > 0 && !p.opts.Quiet:
			for _, change := range res.Data.Changes {
				fmt.Fprintf(p.out, "  %s\n", change)
			}
		}
	}
	if !p.opts.Quiet {
		fmt.Fprintln(p.out, p.successLine(res))
	}
	return nil
}

func (p *Printer) successLine(res operation.Result) string {
	line := p.paint(text.FgGreen, "✓") + " " + res.Message

	var notes []string
	if res.CacheHit {
		notes = append(notes, "cached")
	}
	if res.Deduplicated {
		notes = append(notes, "shared with a concurrent request")
	}
	if res.RecoveredVia != "" {
		notes = append(notes, "recovered from "+strings.ReplaceAll(string(res.RecoveredVia), "_", " "))
	}
	if len(notes) > 0 {
		line += " " + p.paint(text.FgHiBlack, "("+strings.Join(notes, ", ")+")")
	}
	return line
}

func (p *Printer) failure(res operation.Result) {
	fmt.Fprintln(p.out, p.paint(text.FgRed, "✗")+" "+res.Message)
	if res.Suggestion != "" {
		fmt.Fprintln(p.out, "  "+p.paint(text.FgYellow, "→")+" "+res.Suggestion)
	}
}

func (p *Printer) renderGenerations(gens []operation.Generation) {
	t := p.newTable(table.Row{"Gen", "Created", "Description", "Current"})
	for _, g := range gens {
		current := ""
		if g.IsCurrent {
			current = p.paint(text.FgGreen, "*")
		}
		created := "-"
		if !g.CreatedAt.IsZero() {
			created = g.CreatedAt.Local().Format(timeLayout)
		}
		t.AppendRow(table.Row{g.Number, created, g.Description, current})
	}
	t.Render()
}

func (p *Printer) renderPackages(pkgs []operation.Package) {
	t := p.newTable(table.Row{"Attribute", "Version", "Description"})
	for _, pkg := range pkgs {
		t.AppendRow(table.Row{pkg.Attr, pkg.Version, pkgstrings.Summarize(pkg.Description, descriptionWidth)})
	}
	t.Render()
}

// Metrics prints a metrics snapshot.
func (p *Printer) Metrics(snap metrics.Snapshot) error {
	if p.opts.Format != OutputFormatTable {
		return p.encode(snap)
	}

	t := p.newTable(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"operations", snap.Total},
		{"successes", snap.Successes},
		{"failures", snap.Failures},
		{"success rate", percent(snap.SuccessRate())},
		{"cache hits", snap.CacheHits},
		{"cache misses", snap.CacheMisses},
		{"cache hit rate", percent(snap.CacheHitRate())},
		{"deduplicated", snap.Deduplicated},
		{"executions", snap.Executions},
		{"recovered", snap.Recovered},
	})
	t.Render()

	if len(snap.CountByKind) > 0 {
		kinds := make([]string, 0, len(snap.CountByKind))
		for k := range snap.CountByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)

		kt := p.newTable(table.Row{"Kind", "Count", "Avg ms"})
		for _, k := range kinds {
			kind := operation.Kind(k)
			kt.AppendRow(table.Row{k, snap.CountByKind[kind], fmt.Sprintf("%.1f", snap.AvgDurationMS[kind])})
		}
		kt.Render()
	}

	if len(snap.FailuresByCategory) > 0 {
		cats := make([]string, 0, len(snap.FailuresByCategory))
		for c := range snap.FailuresByCategory {
			cats = append(cats, string(c))
		}
		sort.Strings(cats)

		ct := p.newTable(table.Row{"Failure category", "Count"})
		for _, c := range cats {
			ct.AppendRow(table.Row{c, snap.FailuresByCategory[operation.Category(c)]})
		}
		ct.Render()
	}
	return nil
}

// History prints journal records.
func (p *Printer) History(records []history.Record) error {
	if p.opts.Format != OutputFormatTable {
		if records == nil {
			records = []history.Record{}
		}
		return p.encode(records)
	}
	if len(records) == 0 {
		if !p.opts.Quiet {
			fmt.Fprintln(p.out, p.paint(text.FgYellow, "No operations recorded yet"))
		}
		return nil
	}

	t := p.newTable(table.Row{"Started", "Kind", "Result", "Duration", "Executor", "Message"})
	for _, r := range records {
		result := p.paint(text.FgGreen, "ok")
		if !r.Success {
			result = p.paint(text.FgRed, "failed")
		}
		switch {
		case r.CacheHit:
			result += " (cached)"
		case r.RecoveredVia != "":
			result += " (recovered)"
		}
		executor := r.Executor
		if executor == "" {
			executor = "-"
		}
		t.AppendRow(table.Row{
			r.StartedAt.Local().Format(timeLayout),
			r.Kind,
			result,
			formatDuration(r.DurationMS),
			executor,
			pkgstrings.Summarize(r.Message, messageWidth),
		})
	}
	t.Render()
	return nil
}

// KeyValues prints ordered key/value pairs, or encodes v in JSON/YAML mode.
func (p *Printer) KeyValues(pairs [][2]string, v any) error {
	if p.opts.Format != OutputFormatTable {
		return p.encode(v)
	}
	t := p.newTable(table.Row{"Key", "Value"})
	for _, kv := range pairs {
		t.AppendRow(table.Row{kv[0], kv[1]})
	}
	t.Render()
	return nil
}

func (p *Printer) newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	if p.opts.NoColor {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(table.StyleRounded)
	}
	if !p.opts.NoHeaders {
		t.AppendHeader(header)
	}
	return t
}

func (p *Printer) paint(c text.Color, s string) string {
	if p.opts.NoColor {
		return s
	}
	return c.Sprint(s)
}

// encode writes v as JSON or, via a JSON round trip so the json field names
// are kept, as YAML.
func (p *Printer) encode(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if p.opts.Format == OutputFormatJSON {
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	_, err = p.out.Write(out)
	return err
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func formatDuration(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fms", ms)
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
