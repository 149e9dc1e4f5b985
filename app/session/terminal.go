package session

import "errors"

// ErrCancelled returned by LineEditor when the operator aborts the prompt
var ErrCancelled = errors.New("input cancelled")

// Key is a single keypress, printable keys are their runes
type Key rune

// special keys, outside of unicode range
const (
	KeyUp Key = 0x110000 + iota
	KeyDown
	KeyInterrupt
	KeyEnter
	KeyEscape
	KeyUnknown
)

// Style of a text written to the terminal
type Style int

// styles used by the session screens
const (
	StyleNormal Style = iota
	StyleTitle
	StyleHeader
	StyleSelected
	StyleMenu
	StyleInfo
	StyleSuccess
	StyleError
	StylePrompt
)

// Terminal is a screen with absolute addressing, rows and columns are zero-based
type Terminal interface {
	Clear()
	WriteAt(row, col int, text string, style Style)
	ReadKey() (Key, error)
	Size() (width, height int)
}

// LineEditor reads a line of text at the given row, initial value pre-filled.
// maxLen limits input length, 0 for no limit. Returns ErrCancelled on explicit abort.
type LineEditor interface {
	Edit(row int, prompt, initial string, maxLen int) (string, error)
}
