// Package cli provides thin CLI adapters that translate between CLI concerns
// and the collection screens. Adapters handle argument parsing and output
// formatting but delegate behaviour to the screen.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/example/pm/internal/core/edit"
	"github.com/example/pm/internal/core/filter"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/ports/primary"
)

const maxCellWidth = 32

// ListOptions carries the flags of "pm <entity> list".
type ListOptions struct {
	Filters []string
	All     bool
	Limit   int
	Mine    bool
	Offline bool
	Sort    string
	Desc    bool
}

// CollectionAdapter renders one collection screen to a terminal.
type CollectionAdapter struct {
	screen primary.CollectionScreen
	out    io.Writer
}

// NewCollectionAdapter creates a CollectionAdapter over screen.
func NewCollectionAdapter(screen primary.CollectionScreen, out io.Writer) *CollectionAdapter {
	return &CollectionAdapter{screen: screen, out: out}
}

// Prepare applies list options to the screen without loading anything.
func (a *CollectionAdapter) Prepare(ctx context.Context, opts ListOptions) error {
	set := filter.Set{}
	for _, expr := range opts.Filters {
		c, err := filter.Parse(expr)
		if err != nil {
			return err
		}
		if _, ok := a.screen.Schema().Field(c.Field); !ok && c.Field != a.screen.Schema().IDField {
			return fmt.Errorf("%s has no field %q", a.screen.Schema().Name, c.Field)
		}
		set = set.With(c)
	}
	a.screen.SetFilters(set)

	scope := primary.ScopeAll
	if opts.Mine {
		scope = primary.ScopeMine
	}
	if err := a.screen.SetScope(ctx, scope); err != nil {
		return err
	}

	a.screen.SetSort(opts.Sort, opts.Desc)
	w := a.screen.Window()
	if opts.Limit > 0 {
		w.Limit = opts.Limit
	}
	w.All = opts.All
	a.screen.SetWindow(w)
	return nil
}

// List loads the collection (or the offline mirror) and prints the visible page.
func (a *CollectionAdapter) List(ctx context.Context, opts ListOptions) error {
	if err := a.Prepare(ctx, opts); err != nil {
		return err
	}
	load := a.screen.Load
	if opts.Offline {
		load = a.screen.LoadCached
	}
	if err := load(ctx); err != nil {
		return err
	}
	a.Render()
	return nil
}

// Render prints the screen's visible page followed by a paging footer.
func (a *CollectionAdapter) Render() {
	schema := a.screen.Schema()
	filtered := a.screen.Filtered()
	if len(filtered) == 0 {
		fmt.Fprintf(a.out, "No %s records found\n", strings.ToLower(schema.Name))
		return
	}

	visible := a.screen.Visible()
	cols := schema.Columns()
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c)
	}
	cells := make([][]string, len(visible))
	for r, rec := range visible {
		cells[r] = make([]string, len(cols))
		for i, c := range cols {
			cells[r][i] = clip(models.Text(rec[c]))
			if n := lipgloss.Width(cells[r][i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	fmt.Fprintln(a.out)
	header := make([]string, len(cols))
	total := 0
	for i, c := range cols {
		header[i] = pad(strings.ToUpper(c), widths[i])
		total += widths[i] + 2
	}
	fmt.Fprintln(a.out, strings.TrimRight(strings.Join(header, "  "), " "))
	fmt.Fprintln(a.out, strings.Repeat("─", total-2))
	for r := range cells {
		line := make([]string, len(cols))
		for i, c := range cols {
			line[i] = paint(schema, c, cells[r][i], pad(cells[r][i], widths[i]))
		}
		fmt.Fprintln(a.out, strings.TrimRight(strings.Join(line, "  "), " "))
	}

	w := a.screen.Window()
	if hidden := w.Hidden(len(filtered)); hidden > 0 {
		fmt.Fprintf(a.out, "\nShowing %d of %d (%d more, use --all)\n", len(visible), len(filtered), hidden)
	} else {
		fmt.Fprintf(a.out, "\n%d %s\n", len(filtered), plural(len(filtered), "record"))
	}
}

// Show prints every field of one record.
func (a *CollectionAdapter) Show(ctx context.Context, id string) (models.Record, error) {
	if err := a.screen.Load(ctx); err != nil {
		return nil, err
	}
	schema := a.screen.Schema()
	r, ok := a.screen.Find(id)
	if !ok {
		return nil, fmt.Errorf("%s %s not found", schema.Name, id)
	}

	fmt.Fprintf(a.out, "\n%s: %s\n", schema.Name, id)
	for _, c := range schema.Columns()[1:] {
		v := models.Text(r[c])
		fmt.Fprintf(a.out, "%-20s %s\n", c+":", paint(schema, c, v, v))
	}
	fmt.Fprintln(a.out)
	return r, nil
}

// Create builds a draft from field=value pairs and posts it.
func (a *CollectionAdapter) Create(ctx context.Context, sets []string) (models.Record, error) {
	schema := a.screen.Schema()
	draft := edit.NewDraft()
	for _, s := range sets {
		field, value, err := ParseSet(s)
		if err != nil {
			return nil, err
		}
		if draft, err = edit.UpdateField(schema, draft, field, value); err != nil {
			return nil, err
		}
	}

	saved, err := a.screen.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.out, "✓ Created %s %s: %s\n", strings.ToLower(schema.Name), saved.ID(schema), models.Text(saved[schema.TitleField]))
	return saved, nil
}

// Edit opens record id, applies field=value pairs and commits. A failed
// commit leaves nothing staged.
func (a *CollectionAdapter) Edit(ctx context.Context, id string, sets []string) (models.Record, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("must specify at least one --set field=value")
	}
	if err := a.screen.Load(ctx); err != nil {
		return nil, err
	}
	if _, err := a.screen.BeginEdit(id); err != nil {
		return nil, err
	}

	saved, err := a.commit(ctx, sets)
	if err != nil {
		if cancelErr := a.screen.CancelEdit(); cancelErr != nil {
			return nil, fmt.Errorf("%w (cancel: %v)", err, cancelErr)
		}
		return nil, err
	}
	fmt.Fprintf(a.out, "✓ %s %s updated\n", a.screen.Schema().Name, id)
	return saved, nil
}

func (a *CollectionAdapter) commit(ctx context.Context, sets []string) (models.Record, error) {
	for _, s := range sets {
		field, value, err := ParseSet(s)
		if err != nil {
			return nil, err
		}
		if err := a.screen.UpdateField(field, value); err != nil {
			return nil, err
		}
	}
	return a.screen.CommitEdit(ctx)
}

// Delete removes record id.
func (a *CollectionAdapter) Delete(ctx context.Context, id string) error {
	if err := a.screen.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Deleted %s %s\n", strings.ToLower(a.screen.Schema().Name), id)
	return nil
}

// ParseSet splits a "field=value" flag.
func ParseSet(s string) (field, value string, err error) {
	field, value, ok := strings.Cut(s, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", "", fmt.Errorf("invalid --set %q: expected field=value", s)
	}
	return field, value, nil
}

// clip cuts s to maxCellWidth terminal columns. Wide runes count twice.
func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) <= maxCellWidth {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := lipgloss.Width(string(r))
		if used+w > maxCellWidth-1 {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return b.String() + "…"
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// paint colours enum cells by value; padded is what gets printed.
func paint(schema *models.Schema, field, value, padded string) string {
	f, ok := schema.Field(field)
	if !ok || f.Type != models.FieldEnum {
		return padded
	}
	return statusColor(value).Sprint(padded)
}

func statusColor(value string) *color.Color {
	switch value {
	case "Completed", "Done":
		return color.New(color.FgHiGreen)
	case "In Progress":
		return color.New(color.FgYellow)
	case "On Hold", "Blocked":
		return color.New(color.FgRed)
	case "High":
		return color.New(color.FgHiRed)
	case "Low":
		return color.New(color.FgHiBlack)
	}
	return color.New(color.FgWhite)
}
