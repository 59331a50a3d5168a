package compare

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/picatz/apistyles"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleFaint  = lipgloss.NewStyle().Faint(true)
	styleError  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("9"))
)

// maxAnswerWidth bounds the answer column.
const maxAnswerWidth = 48

// Report collects scenario results.
type Report struct {
	Results []Result
}

// Totals sums usage per style over all results.
func (r *Report) Totals() map[apistyles.Style]apistyles.Usage {
	totals := make(map[apistyles.Style]apistyles.Usage, len(apistyles.Styles))
	for _, res := range r.Results {
		u := totals[res.Style]
		u.Add(res.Usage)
		totals[res.Style] = u
	}
	return totals
}

// Failed reports whether any scenario returned an error.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Render writes the report as a table followed by per style totals.
func (r *Report) Render(w io.Writer) error {
	headers := []string{"Scenario", "Style", "Requests", "Tokens", "Items sent", "Bytes sent", "Retries", "Tools", "History", "Answer"}

	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		rows = append(rows, []string{
			string(res.Scenario),
			res.Style.String(),
			strconv.FormatInt(res.Usage.Requests, 10),
			strconv.FormatInt(res.Usage.TotalTokens, 10),
			strconv.FormatInt(res.Usage.ItemsSent, 10),
			strconv.FormatInt(res.Usage.BytesSent, 10),
			strconv.FormatInt(res.Usage.SchemaRetries, 10),
			strconv.FormatInt(res.Usage.ToolCalls, 10),
			strconv.Itoa(res.HistoryLen),
			truncate(res.Answer(), maxAnswerWidth),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleFaint).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case col == len(headers)-1 && row < len(r.Results) && r.Results[row].Err != nil:
				return styleError
			default:
				return styleCell
			}
		})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	totals := r.Totals()
	for _, s := range apistyles.Styles {
		u, ok := totals[s]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", styleHeader.Render(s.Title()+":"), u); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
