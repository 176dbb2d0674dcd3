package effects

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Toaster presents toasts to the user.
type Toaster interface {
	Show(t Toast)
}

// AudioPlayer plays the urgent alert sound.
type AudioPlayer interface {
	Play(ctx context.Context) error
}

var (
	toastBase = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(60)

	toastBorder = map[Style]lipgloss.Color{
		StyleSuccess: lipgloss.Color("42"),
		StyleWarning: lipgloss.Color("214"),
		StyleError:   lipgloss.Color("196"),
	}

	titleStyle = lipgloss.NewStyle().Bold(true)
	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)
	dimStyle  = lipgloss.NewStyle().Faint(true)
	linkStyle = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
)

// TerminalToaster renders toasts as bordered boxes on a writer.
type TerminalToaster struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminalToaster(out io.Writer) *TerminalToaster {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalToaster{out: out}
}

func (t *TerminalToaster) Show(toast Toast) {
	box := RenderToast(toast)

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, box)
}

// RenderToast lays out a toast. The avatar line, badge and link appear only when set.
func RenderToast(t Toast) string {
	var lines []string

	header := titleStyle.Render(t.Title)
	if t.Badge != "" {
		header += " " + badgeStyle.Render(t.Badge)
	}
	lines = append(lines, header)

	if t.AvatarURL != "" {
		who := t.ActorName
		if who == "" {
			who = "someone"
		}
		lines = append(lines, dimStyle.Render("@ "+who+" ("+t.AvatarURL+")"))
	}
	if t.Message != "" {
		lines = append(lines, t.Message)
	}
	if t.Link != "" {
		lines = append(lines, linkStyle.Render(t.Link))
	}

	style := toastBase.BorderForeground(toastBorder[t.Style])
	return style.Render(strings.Join(lines, "\n"))
}

// BellPlayer rings the terminal bell. When AssetPath is set the file must exist,
// mirroring a player that loads a sound asset.
type BellPlayer struct {
	Out       io.Writer
	AssetPath string
}

func (b BellPlayer) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.AssetPath != "" {
		if _, err := os.Stat(b.AssetPath); err != nil {
			return fmt.Errorf("alert sound: %w", err)
		}
	}
	out := b.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := io.WriteString(out, "\a")
	return err
}
