package display

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/restore"
	"mysql-dump-manager/internal/scheduler"
)

const timeLayout = "2006-01-02 15:04:05"

// Printer renders command results as tables and status lines, or as JSON
// or YAML when a structured format is selected. Status lines go to the
// error stream in structured mode so stdout stays parseable.
type Printer struct {
	out      io.Writer
	errOut   io.Writer
	format   OutputFormat
	colors   ColorSystem
	icons    *IconSystem
	style    TableStyle
	maxWidth int
	quiet    bool
}

// NewPrinter creates a printer from the display configuration
func NewPrinter(cfg *DisplayConfig, errOut io.Writer) *Printer {
	cfg.SetDefaults()
	if errOut == nil {
		errOut = os.Stderr
	}
	format, err := ParseOutputFormat(cfg.OutputFormat)
	if err != nil {
		format = FormatTable
	}
	return &Printer{
		out:      cfg.Writer,
		errOut:   errOut,
		format:   format,
		colors:   NewColorSystem(cfg.GetColorTheme(), cfg.Writer, cfg.IsColorEnabled()),
		icons:    NewIconSystem(cfg.IsIconsEnabled()),
		style:    TableStyleByName(cfg.TableStyle),
		maxWidth: cfg.MaxTableWidth,
		quiet:    cfg.QuietMode,
	}
}

// Format returns the selected output format
func (p *Printer) Format() OutputFormat {
	return p.format
}

// Colors returns the printer's color system
func (p *Printer) Colors() ColorSystem {
	return p.colors
}

// Icons returns the printer's icon system
func (p *Printer) Icons() *IconSystem {
	return p.icons
}

// Success prints a success line
func (p *Printer) Success(message string) {
	p.status("success", p.colors.Theme().Success, message)
}

// Warning prints a warning line
func (p *Printer) Warning(message string) {
	p.status("warning", p.colors.Theme().Warning, message)
}

// Info prints an informational line
func (p *Printer) Info(message string) {
	p.status("info", p.colors.Theme().Info, message)
}

// Error prints an error line to the error stream, even in quiet mode
func (p *Printer) Error(message string) {
	fmt.Fprintln(p.errOut, p.icons.Render("error", p.colors)+p.colors.Colorize(message, p.colors.Theme().Error))
}

func (p *Printer) status(icon string, clr Color, message string) {
	if p.quiet {
		return
	}
	w := p.out
	if p.format.IsStructured() {
		w = p.errOut
	}
	fmt.Fprintln(w, p.icons.Render(icon, p.colors)+p.colors.Colorize(message, clr))
}

// NewSpinner returns a spinner on the error stream
func (p *Printer) NewSpinner(message string) *Spinner {
	return NewSpinner(message, p.errOut, p.colors, p.icons.unicode)
}

// Structured encodes v in the selected structured format. It reports false
// when the format is table and nothing was written.
func (p *Printer) Structured(v interface{}) (bool, error) {
	if !p.format.IsStructured() {
		return false, nil
	}
	return true, Encode(p.out, p.format, v)
}

// PrintArtifacts renders the catalog listing
func (p *Printer) PrintArtifacts(artifacts []*backup.Artifact) error {
	if artifacts == nil {
		artifacts = []*backup.Artifact{}
	}
	if ok, err := p.Structured(artifacts); ok {
		return err
	}
	if len(artifacts) == 0 {
		p.Info("No backups found")
		return nil
	}

	t := p.newTable()
	t.SetHeaders("ID", "TYPE", "FILENAME", "SIZE (MB)", "TABLES", "CREATED")
	t.SetColumnAlignment(0, AlignRight)
	t.SetColumnAlignment(3, AlignRight)
	for _, a := range artifacts {
		t.AddRow(
			strconv.FormatInt(a.ID, 10),
			p.icons.Render(string(a.BackupType), p.colors)+string(a.BackupType),
			a.Filename,
			strconv.FormatFloat(a.SizeMB, 'f', 2, 64),
			tablesCell(a.TablesIncluded),
			a.CreatedAt.Format(timeLayout),
		)
	}
	fmt.Fprint(p.out, t.Render())
	return nil
}

// PrintArtifact renders one artifact as a key/value block
func (p *Printer) PrintArtifact(a *backup.Artifact) error {
	if ok, err := p.Structured(a); ok {
		return err
	}
	p.keyValues([][2]string{
		{"ID", strconv.FormatInt(a.ID, 10)},
		{"Filename", a.Filename},
		{"Path", a.Filepath},
		{"Type", string(a.BackupType)},
		{"Status", string(a.Status)},
		{"Size", fmt.Sprintf("%.2f MB", a.SizeMB)},
		{"Compression", string(a.Compression())},
		{"Tables", tablesCell(a.TablesIncluded)},
		{"Created", a.CreatedAt.Format(timeLayout)},
	})
	return nil
}

// PrintRestoreResult renders the outcome and diagnostics of a restore
func (p *Printer) PrintRestoreResult(r *restore.Result) error {
	if ok, err := p.Structured(r); ok {
		return err
	}

	switch r.Outcome {
	case restore.OutcomeSuccess:
		p.Success(r.Message)
	case restore.OutcomeFailed:
		p.Error(r.Message)
	default:
		p.Warning(r.Message)
	}

	d := r.Diagnostics
	if d == nil || p.quiet {
		return nil
	}

	pairs := [][2]string{
		{"Outcome", string(r.Outcome)},
		{"Backup", fmt.Sprintf("%d (%s)", d.ArtifactID, d.Filename)},
		{"Encoding", d.Encoding},
		{"Statements", fmt.Sprintf("%d executed of %d", d.Executed, d.Statements)},
		{"Duration", d.Duration.Round(time.Millisecond).String()},
	}
	if d.Compression != "" {
		pairs = append(pairs, [2]string{"Compression", d.Compression})
	}
	if d.Fallback != restore.FallbackNone {
		pairs = append(pairs, [2]string{"Fallback", string(d.Fallback)})
	}
	if len(d.ImplicatedTables) > 0 {
		pairs = append(pairs, [2]string{"Skipped data", strings.Join(d.ImplicatedTables, ", ")})
	}
	if d.SafetyArtifactID != nil {
		pairs = append(pairs, [2]string{"Safety backup", strconv.FormatInt(*d.SafetyArtifactID, 10)})
	}
	if d.MigrationBefore != "" || d.MigrationAfter != "" {
		pairs = append(pairs, [2]string{"Migration", fmt.Sprintf("%s -> %s", orDash(d.MigrationBefore), orDash(d.MigrationAfter))})
	}
	p.keyValues(pairs)

	if len(d.RowCounts) > 0 {
		t := p.newTable()
		t.SetHeaders("TABLE", "BEFORE", "AFTER", "ADDED")
		for i := 1; i <= 3; i++ {
			t.SetColumnAlignment(i, AlignRight)
		}
		for _, table := range sortedKeys(d.RowCounts) {
			c := d.RowCounts[table]
			t.AddRow(table, countCell(c.Before), countCell(c.After), signedCell(c.Added()))
		}
		fmt.Fprintln(p.out)
		fmt.Fprint(p.out, t.Render())
	}

	p.list("Repairs", d.Repairs, p.colors.Theme().Info)
	if d.Drift != nil {
		var changes []string
		for _, c := range d.Drift.Renamed {
			changes = append(changes, c.String())
		}
		for _, c := range d.Drift.Dropped {
			changes = append(changes, c.String())
		}
		p.list("Column drift", changes, p.colors.Theme().Info)
	}
	p.list("Warnings", d.Warnings, p.colors.Theme().Warning)
	p.list("Replay errors", d.ReplayErrors, p.colors.Theme().Error)
	return nil
}

// PrintJobs renders scheduled dumps
func (p *Printer) PrintJobs(jobs []scheduler.JobInfo) error {
	if jobs == nil {
		jobs = []scheduler.JobInfo{}
	}
	if ok, err := p.Structured(jobs); ok {
		return err
	}
	if len(jobs) == 0 {
		p.Info("No scheduled dumps")
		return nil
	}

	t := p.newTable()
	t.SetHeaders("ID", "SCHEDULE", "TYPE", "TABLES", "NEXT RUN", "LAST RUN", "RUNS")
	t.SetColumnAlignment(6, AlignRight)
	for _, j := range jobs {
		lastRun := timeCell(j.LastRun)
		if j.LastError != "" {
			lastRun += " (failed)"
		}
		t.AddRow(
			j.ID,
			j.Spec,
			string(j.Request.Type),
			orDash(strings.Join(j.Request.Tables, ", ")),
			timeCell(j.NextRun),
			lastRun,
			strconv.Itoa(j.Runs),
		)
	}
	fmt.Fprint(p.out, t.Render())
	return nil
}

// PrintTables renders the live schema's table names
func (p *Printer) PrintTables(tables []string) error {
	if tables == nil {
		tables = []string{}
	}
	if ok, err := p.Structured(tables); ok {
		return err
	}
	for _, table := range tables {
		fmt.Fprintln(p.out, table)
	}
	return nil
}

// PrintRetention renders a retention pass
func (p *Printer) PrintRetention(r *backup.RetentionResult) error {
	if ok, err := p.Structured(r); ok {
		return err
	}
	if len(r.Candidates) == 0 {
		p.Info(fmt.Sprintf("Nothing to prune, %d backups within the limit of %d", r.TotalProcessed, r.Keep))
		return nil
	}

	var names []string
	for _, a := range r.Candidates {
		names = append(names, fmt.Sprintf("%d %s", a.ID, a.Filename))
	}
	if r.DryRun {
		p.list(fmt.Sprintf("Would delete %d of %d backups (keeping %d)", len(r.Candidates), r.TotalProcessed, r.Keep), names, p.colors.Theme().Warning)
		return nil
	}
	p.Success(fmt.Sprintf("Deleted %d of %d backups (keeping %d)", r.Deleted, r.TotalProcessed, r.Keep))
	p.list("Errors", r.Errors, p.colors.Theme().Error)
	return nil
}

// PrintStats renders catalog totals and in-process metrics
func (p *Printer) PrintStats(catalog *backup.CatalogStats, metrics backup.MetricsSnapshot, scheduled int) error {
	if ok, err := p.Structured(struct {
		Catalog   *backup.CatalogStats   `json:"catalog" yaml:"catalog"`
		Metrics   backup.MetricsSnapshot `json:"metrics" yaml:"metrics"`
		Scheduled int                    `json:"scheduled" yaml:"scheduled"`
	}{catalog, metrics, scheduled}); ok {
		return err
	}

	p.keyValues([][2]string{
		{"Total backups", strconv.Itoa(catalog.TotalBackups)},
		{"Full", strconv.Itoa(catalog.FullBackups)},
		{"Partial", strconv.Itoa(catalog.PartialBackups)},
		{"Total size", fmt.Sprintf("%.2f MB", catalog.TotalSizeMB)},
		{"Last backup", timeCell(catalog.LastBackup)},
		{"Scheduled", strconv.Itoa(scheduled)},
	})

	if len(metrics.Operations) == 0 {
		return nil
	}
	t := p.newTable()
	t.SetHeaders("OPERATION", "TOTAL", "FAILED", "SUCCESS RATE", "AVG")
	for i := 1; i <= 4; i++ {
		t.SetColumnAlignment(i, AlignRight)
	}
	kinds := make([]string, 0, len(metrics.Operations))
	for kind := range metrics.Operations {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		m := metrics.Operations[backup.OperationKind(kind)]
		t.AddRow(kind,
			strconv.FormatInt(m.Total, 10),
			strconv.FormatInt(m.Failed, 10),
			fmt.Sprintf("%.1f%%", m.SuccessRate),
			m.AverageDuration.Round(time.Millisecond).String())
	}
	fmt.Fprintln(p.out)
	fmt.Fprint(p.out, t.Render())
	return nil
}

// PrintHints prints troubleshooting suggestions to the error stream
func (p *Printer) PrintHints(hints []string) {
	if len(hints) == 0 {
		return
	}
	fmt.Fprintln(p.errOut, p.colors.Colorize("Troubleshooting:", p.colors.Theme().Info))
	for _, hint := range hints {
		fmt.Fprintf(p.errOut, "  %s%s\n", p.icons.Render("bullet", nil), hint)
	}
}

func (p *Printer) newTable() *Table {
	return NewTable(p.style, p.maxWidth, p.colors)
}

func (p *Printer) keyValues(pairs [][2]string) {
	width := 0
	for _, kv := range pairs {
		if len(kv[0]) > width {
			width = len(kv[0])
		}
	}
	for _, kv := range pairs {
		label := p.colors.Colorize(fmt.Sprintf("%-*s", width+1, kv[0]+":"), p.colors.Theme().Muted)
		fmt.Fprintf(p.out, "%s %s\n", label, orDash(kv[1]))
	}
}

func (p *Printer) list(title string, items []string, clr Color) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", p.colors.Colorize(title+":", clr))
	for _, item := range items {
		fmt.Fprintf(p.out, "  %s%s\n", p.icons.Render("bullet", nil), item)
	}
}

func tablesCell(t backup.TableList) string {
	if !t.Recorded || len(t.Names) == 0 {
		return "all"
	}
	return t.String()
}

func timeCell(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func countCell(n *int64) string {
	if n == nil {
		return "?"
	}
	return strconv.FormatInt(*n, 10)
}

func signedCell(n *int64) string {
	if n == nil {
		return "?"
	}
	return fmt.Sprintf("%+d", *n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string]restore.RowCount) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
