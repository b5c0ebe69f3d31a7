package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/greg-hellings/forgeclient/pkg/forge"
)

// rateLimitJSON is the rate-limit command's output shape.
type rateLimitJSON struct {
	Backend   string     `json:"backend"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	Used      int        `json:"used"`
	Reset     *time.Time `json:"reset,omitempty"`
	Resource  string     `json:"resource,omitempty"`
}

// render writes v as indented JSON, or calls tableFn for --format table.
func render(w io.Writer, v any, tableFn func(*output)) error {
	if flagFormat == "json" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, _ = w.Write(data)
		_, _ = w.Write([]byte("\n"))
		return nil
	}
	tableFn(newOutput(w))
	return nil
}

// output renders tables sized to the terminal, with colors only when
// writing to one.
type output struct {
	w          io.Writer
	width      int
	colors     bool
	titleWidth int
}

func newOutput(w io.Writer) *output {
	o := &output{w: w, width: detectTerminalWidth(w)}
	o.colors = o.width > 0
	o.titleWidth = 60
	if o.width > 0 {
		// Leave room for the number, state and author columns.
		o.titleWidth = max(20, o.width-50)
	}
	return o
}

func (o *output) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(o.w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.DrawBorder = true
	return tw
}

func (o *output) color(s string, c text.Color) string {
	if !o.colors {
		return s
	}
	return c.Sprint(s)
}

func (o *output) state(s forge.State) string {
	switch s {
	case forge.StateOpen:
		return o.color(string(s), text.FgGreen)
	case forge.StateMerged:
		return o.color(string(s), text.FgMagenta)
	case forge.StateClosed:
		return o.color(string(s), text.FgRed)
	}
	return string(s)
}

func (o *output) truncateTitle(tw table.Writer, column int) {
	tw.SetColumnConfigs([]table.ColumnConfig{{
		Number:      column,
		WidthMax:    o.titleWidth,
		Transformer: truncTransformer(o.titleWidth),
	}})
}

func (o *output) user(u *forge.User) {
	tw := o.newTable()
	tw.AppendRows([]table.Row{
		{"ID", u.ID.String()},
		{"Username", u.Username},
		{"Name", u.DisplayName},
		{"Avatar", u.AvatarURL},
	})
	tw.Render()
}

func (o *output) repository(r *forge.Repository) {
	tw := o.newTable()
	rows := []table.Row{
		{"ID", r.ID.String()},
		{"Name", r.FullName},
		{"Backend", r.Backend},
		{"URL", r.URL},
		{"Default branch", r.DefaultBranch},
		{"Visibility", r.Visibility},
	}
	if r.Description != nil {
		rows = append(rows, table.Row{"Description", *r.Description})
	}
	if r.Archived != nil {
		rows = append(rows, table.Row{"Archived", strconv.FormatBool(*r.Archived)})
	}
	if r.Stars != nil {
		rows = append(rows, table.Row{"Stars", *r.Stars})
	}
	if r.Forks != nil {
		rows = append(rows, table.Row{"Forks", *r.Forks})
	}
	if r.UpdatedAt != nil {
		rows = append(rows, table.Row{"Updated", r.UpdatedAt.Format(time.RFC3339)})
	}
	tw.AppendRows(rows)
	tw.Render()
}

func (o *output) issues(issues []forge.Issue) {
	tw := o.newTable()
	tw.AppendHeader(table.Row{"#", "Title", "State", "Author", "Labels", "Updated"})
	o.truncateTitle(tw, 2)
	for _, i := range issues {
		tw.AppendRow(table.Row{i.Number, i.Title, o.state(i.State), i.Author.Username,
			strings.Join(i.Labels, ","), formatDate(i.UpdatedAt)})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d issues", len(issues))})
	tw.Render()
}

func (o *output) pullRequests(prs []forge.PullRequest) {
	tw := o.newTable()
	tw.AppendHeader(table.Row{"#", "Title", "State", "Author", "Branches", "Updated"})
	o.truncateTitle(tw, 2)
	for _, p := range prs {
		title := p.Title
		if p.Draft {
			title = o.color("[draft] ", text.FgHiBlack) + title
		}
		tw.AppendRow(table.Row{p.Number, title, o.state(p.State), p.Author.Username,
			p.SourceBranch + " → " + p.TargetBranch, formatDate(p.UpdatedAt)})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d pull requests", len(prs))})
	tw.Render()
}

func (o *output) branches(branches []forge.Branch) {
	tw := o.newTable()
	tw.AppendHeader(table.Row{"Branch", "Commit", "Protected", "Default"})
	for _, b := range branches {
		name := b.Name
		if b.Default {
			name = o.color(name, text.Bold)
		}
		tw.AppendRow(table.Row{name, shortSHA(b.CommitSHA), mark(b.Protected), mark(b.Default)})
	}
	tw.Render()
}

func (o *output) diff(d *forge.PullRequestDiff) {
	tw := o.newTable()
	tw.AppendHeader(table.Row{"File", "Change", "+", "-"})
	for _, f := range d.Files {
		change := "modified"
		switch {
		case f.IsNew:
			change = o.color("added", text.FgGreen)
		case f.IsDeleted:
			change = o.color("deleted", text.FgRed)
		case f.IsRenamed:
			change = "renamed"
		}
		path := f.NewPath
		if f.IsRenamed && f.OldPath != nil {
			path = *f.OldPath + " → " + f.NewPath
		}
		tw.AppendRow(table.Row{path, change, f.Additions, f.Deletions})
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d files", len(d.Files)), "", d.Additions, d.Deletions})
	tw.Render()
}

func (o *output) rateLimit(rl rateLimitJSON) {
	tw := o.newTable()
	rows := []table.Row{
		{"Backend", rl.Backend},
		{"Limit", rl.Limit},
		{"Remaining", rl.Remaining},
		{"Used", rl.Used},
	}
	if rl.Reset != nil {
		rows = append(rows, table.Row{"Reset", rl.Reset.Format(time.RFC3339)})
	}
	if rl.Resource != "" {
		rows = append(rows, table.Row{"Resource", rl.Resource})
	}
	tw.AppendRows(rows)
	tw.Render()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2006-01-02")
}

func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

// truncTransformer returns a transformer that truncates long cell values
// with an ellipsis.
func truncTransformer(maxWidth int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if maxWidth <= 0 || utf8.RuneCountInString(s) <= maxWidth {
			return s
		}
		if maxWidth <= 1 {
			return "…"
		}
		runes := []rune(s)
		return string(runes[:maxWidth-1]) + "…"
	}
}

// detectTerminalWidth attempts to get terminal width from writer if it
// is a terminal.
func detectTerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	if !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
