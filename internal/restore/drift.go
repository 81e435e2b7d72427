package restore

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ColumnSource reads the live column list of a table
type ColumnSource interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
}

// DefaultColumnAliases maps legacy column names to their current names
var DefaultColumnAliases = map[string]string{
	"contraseña":         "password",
	"contrasena":         "password",
	"clave":              "password",
	"correo":             "email",
	"correo_electronico": "email",
	"usuario":            "username",
	"nombre_usuario":     "username",
}

// ColumnChange records one resolved or dropped column of a table
type ColumnChange struct {
	Table string `json:"table" yaml:"table"`
	From  string `json:"from" yaml:"from"`
	To    string `json:"to,omitempty" yaml:"to,omitempty"`
}

func (c ColumnChange) String() string {
	if c.To == "" {
		return fmt.Sprintf("%s.%s dropped", c.Table, c.From)
	}
	return fmt.Sprintf("%s.%s -> %s", c.Table, c.From, c.To)
}

// DriftReport lists the column changes applied to a script
type DriftReport struct {
	Renamed  []ColumnChange `json:"renamed,omitempty" yaml:"renamed,omitempty"`
	Dropped  []ColumnChange `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Warnings []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// DriftCorrector rewrites the column lists of data statements to match the
// live schema. Only column lists change; values are never rewritten.
type DriftCorrector struct {
	columns ColumnSource
	aliases map[string]string
}

// NewDriftCorrector creates a corrector. Alias keys match case-insensitively
// and ignoring accents.
func NewDriftCorrector(columns ColumnSource, aliases map[string]string) *DriftCorrector {
	if aliases == nil {
		aliases = DefaultColumnAliases
	}
	folded := make(map[string]string, len(aliases))
	for from, to := range aliases {
		folded[foldName(from)] = to
	}
	return &DriftCorrector{columns: columns, aliases: folded}
}

type tableColumns struct {
	exact  map[string]string
	folded map[string]string
}

// Correct returns statements with drifted columns renamed or dropped. Tables
// missing from the live schema are left alone since the script creates them.
func (d *DriftCorrector) Correct(ctx context.Context, statements []Statement) ([]Statement, *DriftReport, error) {
	report := &DriftReport{}
	live := make(map[string]*tableColumns)
	resolved := make(map[string]map[string]string)

	out := make([]Statement, len(statements))
	for i, stmt := range statements {
		out[i] = stmt
		if stmt.Kind != KindData || stmt.Table == "" {
			continue
		}

		columns, err := d.liveColumns(ctx, live, stmt.Table)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("could not read live columns of %s: %v", stmt.Table, err))
			live[stmt.Table] = nil
			continue
		}
		if columns == nil {
			continue
		}

		insert, ok := parseInsert(stmt.SQL)
		if !ok {
			continue
		}

		mapping := resolved[stmt.Table]
		if mapping == nil {
			mapping = make(map[string]string)
			resolved[stmt.Table] = mapping
		}

		changed := false
		for idx := len(insert.columns) - 1; idx >= 0; idx-- {
			name := insert.columns[idx]
			target, seen := mapping[name]
			if !seen {
				target = d.resolve(name, columns)
				mapping[name] = target
				switch {
				case target == "":
					report.Dropped = append(report.Dropped, ColumnChange{Table: stmt.Table, From: name})
				case target != name:
					report.Renamed = append(report.Renamed, ColumnChange{Table: stmt.Table, From: name, To: target})
				}
			}

			switch {
			case target == "":
				insert.dropColumn(idx)
				changed = true
			case target != name:
				insert.columns[idx] = target
				changed = true
			}
		}

		if !changed {
			continue
		}
		if len(insert.columns) == 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("no column of a %s data statement exists in the live schema; statement skipped", stmt.Table))
			out[i] = Statement{Kind: KindOther, Table: stmt.Table}
			continue
		}
		out[i].SQL = insert.String()
	}

	return compact(out), report, nil
}

func (d *DriftCorrector) liveColumns(ctx context.Context, cache map[string]*tableColumns, table string) (*tableColumns, error) {
	if cols, ok := cache[table]; ok {
		return cols, nil
	}
	names, err := d.columns.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		cache[table] = nil
		return nil, nil
	}

	cols := &tableColumns{
		exact:  make(map[string]string, len(names)),
		folded: make(map[string]string, len(names)),
	}
	for _, n := range names {
		cols.exact[strings.ToLower(n)] = n
		cols.folded[foldName(n)] = n
	}
	cache[table] = cols
	return cols, nil
}

// resolve returns the live column for name, or "" when none matches
func (d *DriftCorrector) resolve(name string, cols *tableColumns) string {
	if live, ok := cols.exact[strings.ToLower(name)]; ok {
		return live
	}
	folded := foldName(name)
	if live, ok := cols.folded[folded]; ok {
		return live
	}
	if alias, ok := d.aliases[folded]; ok {
		if live, ok := cols.exact[strings.ToLower(alias)]; ok {
			return live
		}
	}
	return ""
}

// foldName lowercases name and strips combining marks, so "Contraseña"
// and "contrasena" compare equal
func foldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(folded)
}

func compact(statements []Statement) []Statement {
	out := statements[:0]
	for _, s := range statements {
		if s.SQL != "" {
			out = append(out, s)
		}
	}
	return out
}
