// Package ui renders CLI output for the operator commands.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"linerelay/pkg/store"
)

const columnGap = "  "

// theme groups reusable styles for CLI output.
type theme struct {
	header   lipgloss.Style
	divider  lipgloss.Style
	active   lipgloss.Style
	inactive lipgloss.Style
	target   lipgloss.Style
	unset    lipgloss.Style
	hint     lipgloss.Style
	success  lipgloss.Style
}

// defaultTheme mirrors the retro terminal palette of the status output.
func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("130")),
		active: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		inactive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		target: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		unset: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
	}
}

// SubscriberTable renders administrators with their platform, active flag and lock target.
func SubscriberTable(subs []store.Subscriber) string {
	t := defaultTheme()

	if len(subs) == 0 {
		return t.hint.Render("no subscribers") + "\n"
	}

	rows := make([][]string, 0, len(subs))
	for _, sub := range subs {
		target := sub.Target()
		if target == "" {
			target = "(none)"
		}
		rows = append(rows, []string{sub.UserID, store.ChannelOrDefault(sub.Channel), yesNo(sub.IsActive), target, timestamp(sub.UpdatedAt)})
	}

	return t.table([]string{"USER ID", "CHANNEL", "ACTIVE", "TARGET", "UPDATED"}, rows, func(row int, col int) lipgloss.Style {
		switch col {
		case 2:
			if subs[row].IsActive {
				return t.active
			}
			return t.inactive
		case 3:
			if subs[row].Target() == "" {
				return t.unset
			}
			return t.target
		case 4:
			return t.hint
		default:
			return lipgloss.NewStyle()
		}
	})
}

// MessageTable renders message-log rows, one line per message. Content is
// collapsed to a single line and shortened to maxContent runes.
func MessageTable(messages []store.Message, maxContent int) string {
	t := defaultTheme()

	if len(messages) == 0 {
		return t.hint.Render("no messages") + "\n"
	}

	rows := make([][]string, 0, len(messages))
	for _, msg := range messages {
		rows = append(rows, []string{timestamp(msg.CreatedAt), msg.Channel, msg.UserID, msg.UserName, preview(msg.Content, maxContent)})
	}

	return t.table([]string{"AT", "CHANNEL", "USER ID", "NAME", "CONTENT"}, rows, func(_ int, col int) lipgloss.Style {
		switch col {
		case 0:
			return t.hint
		case 2:
			return t.target
		default:
			return lipgloss.NewStyle()
		}
	})
}

// table pads every column to its widest cell and styles cells per position.
func (t theme) table(headers []string, rows [][]string, style func(row int, col int) lipgloss.Style) string {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = lipgloss.Width(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	headerCells := make([]string, len(headers))
	for i, header := range headers {
		headerCells[i] = pad(header, widths[i])
	}
	b.WriteString(t.header.Render(strings.Join(headerCells, columnGap)))
	b.WriteString("\n")

	total := len(columnGap) * (len(widths) - 1)
	for _, width := range widths {
		total += width
	}
	b.WriteString(t.divider.Render(strings.Repeat("─", total)))
	b.WriteString("\n")

	for r, row := range rows {
		cells := make([]string, len(row))
		for c, cell := range row {
			cells[c] = style(r, c).Render(pad(cell, widths[c]))
		}
		b.WriteString(strings.Join(cells, columnGap))
		b.WriteString("\n")
	}

	return b.String()
}

// LockConfirmation renders the result of an operator lock change.
func LockConfirmation(adminID string, targetID string) string {
	t := defaultTheme()
	return t.success.Render("locked") + " " + fmt.Sprintf("%s → %s", adminID, t.target.Render(targetID)) + "\n"
}

func pad(value string, width int) string {
	if gap := width - lipgloss.Width(value); gap > 0 {
		return value + strings.Repeat(" ", gap)
	}
	return value
}

func timestamp(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return at.UTC().Format("2006-01-02 15:04:05")
}

func preview(text string, limit int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if limit <= 0 || len(runes) <= limit {
		return flat
	}
	return string(runes[:limit]) + "…"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
