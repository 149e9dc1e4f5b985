// Package terminal provides Console, a TTY implementation of the session's Terminal and LineEditor.
// Keys are read one by one in raw mode, output uses ANSI cursor addressing, lines are edited with liner.
package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	log "github.com/go-pkgz/lgr"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/umputun/backups/app/session"
)

// ErrNotTerminal returned by New when stdin is not a terminal
var ErrNotTerminal = errors.New("stdin is not a terminal")

const (
	defaultWidth  = 80
	defaultHeight = 24
)

var styles = map[session.Style]lipgloss.Style{
	session.StyleNormal:   lipgloss.NewStyle(),
	session.StyleTitle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	session.StyleHeader:   lipgloss.NewStyle().Bold(true).Underline(true),
	session.StyleSelected: lipgloss.NewStyle().Reverse(true),
	session.StyleMenu:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	session.StyleInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	session.StyleSuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	session.StyleError:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	session.StylePrompt:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
}

// Console is a TTY based terminal with line editing
type Console struct {
	in   *os.File
	out  io.Writer
	fd   int
	line *liner.State

	mu  sync.Mutex
	raw *term.State // saved mode while a key read is in progress
}

// New makes Console on stdin/stdout, fails if stdin is not a terminal
func New() (*Console, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits int
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Console{in: os.Stdin, out: os.Stdout, fd: fd, line: line}, nil
}

// Close restores terminal mode and clears the screen. A key read still blocked
// after the session is terminated has its raw mode reverted here.
func (c *Console) Close() error {
	c.restore()
	c.Clear()
	return c.line.Close()
}

// Clear erases the screen and moves cursor home
func (c *Console) Clear() {
	_, _ = io.WriteString(c.out, "\x1b[2J\x1b[H")
}

// WriteAt writes styled text at zero-based row and column
func (c *Console) WriteAt(row, col int, text string, style session.Style) {
	st, ok := styles[style]
	if !ok {
		st = styles[session.StyleNormal]
	}
	_, _ = fmt.Fprintf(c.out, "%s%s", moveTo(row, col), st.Render(text))
}

// ReadKey waits for a single keypress, the terminal is switched to raw mode for the read only
func (c *Console) ReadKey() (session.Key, error) {
	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		return 0, fmt.Errorf("can't switch terminal to raw mode: %w", err)
	}
	c.mu.Lock()
	c.raw = oldState
	c.mu.Unlock()
	defer c.restore()

	buf := make([]byte, 16)
	n, err := c.in.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return decodeKey(buf[:n]), nil
}

// Size returns terminal size, 80x24 if it can't be detected
func (c *Console) Size() (width, height int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd())) //nolint:gosec // fd fits int
	if err != nil || w <= 0 || h <= 0 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

// Edit reads a line at the given row with initial value pre-filled. Ctrl-C and Ctrl-D abort
// the input with session.ErrCancelled. Input longer than maxLen is truncated.
func (c *Console) Edit(row int, prompt, initial string, maxLen int) (string, error) {
	_, _ = fmt.Fprintf(c.out, "%s\x1b[2K", moveTo(row, 0))
	res, err := c.line.PromptWithSuggestion(prompt, initial, -1)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return "", session.ErrCancelled
		}
		return "", fmt.Errorf("can't read input: %w", err)
	}
	if strings.TrimSpace(res) != "" {
		c.line.AppendHistory(res)
	}
	return truncate(res, maxLen), nil
}

// restore reverts the mode saved by ReadKey, once
func (c *Console) restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw == nil {
		return
	}
	if err := term.Restore(c.fd, c.raw); err != nil {
		log.Printf("[WARN] can't restore terminal, %v", err)
	}
	c.raw = nil
}

func moveTo(row, col int) string {
	return fmt.Sprintf("\x1b[%d;%dH", row+1, col+1)
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// decodeKey converts bytes of a single raw-mode read to a key
func decodeKey(b []byte) session.Key {
	switch {
	case len(b) == 0:
		return session.KeyUnknown
	case b[0] == 0x03 || b[0] == 0x04: // ctrl-c, ctrl-d
		return session.KeyInterrupt
	case b[0] == '\r' || b[0] == '\n':
		return session.KeyEnter
	case b[0] == 0x1b && len(b) == 1:
		return session.KeyEscape
	case b[0] == 0x1b:
		seq := string(b[1:])
		switch seq {
		case "[A", "OA":
			return session.KeyUp
		case "[B", "OB":
			return session.KeyDown
		}
		return session.KeyUnknown
	}
	r, _ := utf8.DecodeRune(b)
	if r == utf8.RuneError {
		return session.KeyUnknown
	}
	return session.Key(r)
}
