package terminal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umputun/backups/app/session"
)

func TestDecodeKey(t *testing.T) {
	tbl := []struct {
		inp []byte
		res session.Key
	}{
		{[]byte("r"), 'r'},
		{[]byte("R"), 'R'},
		{[]byte{0x03}, session.KeyInterrupt},
		{[]byte{0x04}, session.KeyInterrupt},
		{[]byte("\r"), session.KeyEnter},
		{[]byte("\n"), session.KeyEnter},
		{[]byte{0x1b}, session.KeyEscape},
		{[]byte("\x1b[A"), session.KeyUp},
		{[]byte("\x1bOA"), session.KeyUp},
		{[]byte("\x1b[B"), session.KeyDown},
		{[]byte("\x1bOB"), session.KeyDown},
		{[]byte("\x1b[C"), session.KeyUnknown},
		{[]byte("ж"), 'ж'},
		{[]byte{0xff}, session.KeyUnknown},
		{nil, session.KeyUnknown},
	}

	for i, tt := range tbl {
		assert.Equal(t, tt.res, decodeKey(tt.inp), "case #%d %q", i, tt.inp)
	}
}

func TestConsole_WriteAtAndClear(t *testing.T) {
	buf := bytes.Buffer{}
	c := Console{out: &buf}
	c.Clear()
	c.WriteAt(0, 0, "title", session.StyleNormal)
	c.WriteAt(4, 2, "row", session.Style(100))
	assert.Equal(t, "\x1b[2J\x1b[H\x1b[1;1Htitle\x1b[5;3Hrow", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 0))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "жы", truncate("жыв", 2))
}

func TestMoveTo(t *testing.T) {
	assert.Equal(t, "\x1b[1;1H", moveTo(0, 0))
	assert.Equal(t, "\x1b[24;10H", moveTo(23, 9))
}
