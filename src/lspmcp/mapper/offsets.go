// Package mapper converts between analyzer protocol shapes and the shapes used by the bridge's tools.
package mapper

// Offset conversion follows gopls' protocol.Mapper (BSD license, Copyright 2023 The Go Authors).

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// TextMapper converts between byte offsets, protocol positions (0-based, UTF-16 columns)
// and tool positions (1-based, rune columns) within one text.
type TextMapper struct {
	content []byte
	// lineStart holds the byte offset at which each line begins.
	lineStart []int
	nonASCII  bool
}

// NewTextMapper indexes the line starts of text.
func NewTextMapper(text string) *TextMapper {
	content := []byte(text)
	m := &TextMapper{
		content:   content,
		lineStart: make([]int, 1, bytes.Count(content, []byte("\n"))+1),
	}
	for offset, b := range content {
		if b == '\n' {
			m.lineStart = append(m.lineStart, offset+1)
		}
		if b >= utf8.RuneSelf {
			m.nonASCII = true
		}
	}
	return m
}

// LineCount returns the number of lines, counting a final line without terminator.
func (m *TextMapper) LineCount() int {
	return len(m.lineStart)
}

// line returns the content of the 0-based line without its terminator.
func (m *TextMapper) line(n int) []byte {
	start := m.lineStart[n]
	end := len(m.content)
	if n+1 < len(m.lineStart) {
		end = m.lineStart[n+1] - 1
	}
	return bytes.TrimSuffix(m.content[start:end], []byte("\r"))
}

// PositionOffset converts a protocol position to a byte offset.
func (m *TextMapper) PositionOffset(p protocol.Position) (int, error) {
	if int(p.Line) > len(m.lineStart) {
		return 0, fmt.Errorf("line %d out of range 0-%d", p.Line, len(m.lineStart))
	}
	if int(p.Line) == len(m.lineStart) {
		if p.Character == 0 {
			return len(m.content), nil
		}
		return 0, fmt.Errorf("column is beyond end of file")
	}

	offset := m.lineStart[p.Line]
	rest := m.content[offset:]
	col8 := 0
	for col16 := 0; col16 < int(p.Character); col16++ {
		r, sz := utf8.DecodeRune(rest)
		if sz == 0 {
			return 0, fmt.Errorf("column is beyond end of file")
		}
		if r == '\n' {
			return 0, fmt.Errorf("column is beyond end of line")
		}
		rest = rest[sz:]
		if r >= 0x10000 {
			col16++
			if col16 == int(p.Character) {
				// The position splits a surrogate pair.
				break
			}
		}
		col8 += sz
	}
	return offset + col8, nil
}

// OffsetPosition converts a byte offset to a protocol position.
func (m *TextMapper) OffsetPosition(offset int) (protocol.Position, error) {
	if offset < 0 || offset > len(m.content) {
		return protocol.Position{}, fmt.Errorf("invalid offset %d (want 0-%d)", offset, len(m.content))
	}
	line := sort.Search(len(m.lineStart), func(i int) bool {
		return offset < m.lineStart[i]
	}) - 1
	start := m.lineStart[line]

	col16 := offset - start
	if m.nonASCII {
		col16 = UTF16Len(m.content[start:offset])
	}
	return protocol.Position{Line: uint32(line), Character: uint32(col16)}, nil
}

// ToolPosition converts a 1-based line and 1-based rune column to a protocol position.
// The column may point one past the last character of the line.
func (m *TextMapper) ToolPosition(line, column int) (protocol.Position, error) {
	if line < 1 || line > m.LineCount() {
		return protocol.Position{}, fmt.Errorf("line %d is out of range 1-%d", line, m.LineCount())
	}
	text := m.line(line - 1)
	runes := utf8.RuneCount(text)
	if column < 1 || column > runes+1 {
		return protocol.Position{}, fmt.Errorf("column %d is out of range 1-%d on line %d", column, runes+1, line)
	}

	col16 := 0
	for i := 1; i < column; i++ {
		r, sz := utf8.DecodeRune(text)
		text = text[sz:]
		col16++
		if r >= 0x10000 {
			col16++
		}
	}
	return protocol.Position{Line: uint32(line - 1), Character: uint32(col16)}, nil
}

// FromPosition converts a protocol position to a 1-based line and 1-based rune column.
// Positions past the end of the text are translated without clamping.
func (m *TextMapper) FromPosition(p protocol.Position) (line, column int) {
	line = int(p.Line) + 1
	if int(p.Line) >= m.LineCount() {
		return line, int(p.Character) + 1
	}

	text := m.line(int(p.Line))
	column = 1
	for col16 := 0; col16 < int(p.Character) && len(text) > 0; {
		r, sz := utf8.DecodeRune(text)
		text = text[sz:]
		col16++
		if r >= 0x10000 {
			col16++
		}
		column++
	}
	return line, column
}

// UTF16Len returns the number of codes in the UTF-16 transcoding of s.
func UTF16Len(s []byte) int {
	var n int
	for len(s) > 0 {
		n++
		if s[0] < utf8.RuneSelf {
			s = s[1:]
			continue
		}
		r, size := utf8.DecodeRune(s)
		if r >= 0x10000 {
			n++
		}
		s = s[size:]
	}
	return n
}
