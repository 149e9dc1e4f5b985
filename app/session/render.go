package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/umputun/backups/app/pager"
)

const menu = "R)un V)iew A)dd C)hange D)elete B)ackup dir S)ave X)exit  Up/Down scroll"

// rows taken by title, backup dir, header, status, menu and prompt
const chromeRows = 6

type line struct {
	text  string
	style Style
}

// viewport returns the number of job rows fitting the screen, at least one
func viewport(height int) int {
	return max(1, height-chromeRows)
}

// drawMain renders the job list screen:
// title, backup dir, header, visible jobs, status message, menu and empty prompt row
func (s *Session) drawMain() {
	w, h := s.Term.Size()
	s.Term.Clear()

	title := "Backups maintenance"
	if s.dirty {
		title += " (modified)"
	}
	s.Term.WriteAt(0, 0, fit(title, w), StyleTitle)
	s.Term.WriteAt(1, 0, fit("Backup directory: "+s.cat.BackupDir, w), StyleNormal)

	total := len(s.cat.Jobs)
	start, end := pager.Visible(total, s.firstRow, viewport(h))
	nameWidth := 4
	for _, j := range s.cat.Jobs[start:end] {
		nameWidth = max(nameWidth, utf8.RuneCountInString(j.Name))
	}
	header := fmt.Sprintf("%4s  %-*s  %s", "No", nameWidth, "Name", "Sources")
	if total > end-start {
		header += fmt.Sprintf("  [%d-%d of %d]", start+1, end, total)
	}
	s.Term.WriteAt(2, 0, fit(header, w), StyleHeader)

	if total == 0 {
		s.Term.WriteAt(3, 0, fit("  no jobs, press A to add one", w), StyleInfo)
	}
	for i := start; i < end; i++ {
		j := s.cat.Jobs[i]
		style := StyleNormal
		if i == s.selection {
			style = StyleSelected
		}
		row := fmt.Sprintf("%4d  %-*s  %s", i+1, nameWidth, j.Name, j.SourceList())
		s.Term.WriteAt(3+i-start, 0, fit(row, w), style)
	}

	s.drawStatus()
	s.Term.WriteAt(h-2, 0, fit(menu, w), StyleMenu)
}

// drawStatus renders the transient message row
func (s *Session) drawStatus() {
	w, h := s.Term.Size()
	s.Term.WriteAt(h-3, 0, fit(s.message, w), s.msgStyle)
}

// drawLines renders lines from the top, keeping the tail if they don't fit into maxRows
func (s *Session) drawLines(lines []line, w, maxRows int) {
	if len(lines) > maxRows {
		lines = lines[len(lines)-maxRows:]
	}
	for i, l := range lines {
		s.Term.WriteAt(i, 0, fit(l.text, w), l.style)
	}
}

// fit truncates text to width runes and pads it with spaces to overwrite the previous content
func fit(text string, width int) string {
	if width <= 0 {
		return text
	}
	n := utf8.RuneCountInString(text)
	if n > width {
		return string([]rune(text)[:width])
	}
	return text + strings.Repeat(" ", width-n)
}
