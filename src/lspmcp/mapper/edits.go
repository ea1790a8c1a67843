package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.lsp.dev/protocol"
)

// EditOffset stores a string modification based on byte offsets in the original text.
type EditOffset struct {
	start int
	end   int
	text  string
}

// TextEditsToEditOffsets resolves protocol ranges against text. Edits are returned in order of position.
// Overlapping edits are rejected, as the analysis protocol forbids them.
func TextEditsToEditOffsets(text string, edits []protocol.TextEdit) ([]EditOffset, error) {
	m := NewTextMapper(text)
	offsets := make([]EditOffset, 0, len(edits))
	for _, edit := range edits {
		start, err := m.PositionOffset(edit.Range.Start)
		if err != nil {
			return nil, fmt.Errorf("edit start: %w", err)
		}
		end, err := m.PositionOffset(edit.Range.End)
		if err != nil {
			return nil, fmt.Errorf("edit end: %w", err)
		}
		if end < start {
			return nil, fmt.Errorf("edit range ends before it starts")
		}
		offsets = append(offsets, EditOffset{start: start, end: end, text: edit.NewText})
	}

	sort.SliceStable(offsets, func(i, j int) bool {
		return offsets[i].start < offsets[j].start
	})
	for i := 1; i < len(offsets); i++ {
		if offsets[i].start < offsets[i-1].end {
			return nil, fmt.Errorf("overlapping edits at offset %d", offsets[i].start)
		}
	}
	return offsets, nil
}

// ApplyTextEdits applies the edits of one file to its text.
func ApplyTextEdits(text string, edits []protocol.TextEdit) (string, error) {
	offsets, err := TextEditsToEditOffsets(text, edits)
	if err != nil {
		return "", fmt.Errorf("unable to apply edits: %w", err)
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, o := range offsets {
		b.WriteString(text[last:o.start])
		b.WriteString(o.text)
		last = o.end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// LineDiff renders a compact line diff between two versions of a file.
// Each hunk starts with the 1-based line number in the original text.
func LineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	line := 1
	inHunk := false
	for _, d := range diffs {
		chunk := splitDiffLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			line += len(chunk)
			inHunk = false
			continue
		case diffmatchpatch.DiffDelete:
			if !inHunk {
				fmt.Fprintf(&out, "@@ line %d @@\n", line)
				inHunk = true
			}
			for _, l := range chunk {
				out.WriteString("-" + l + "\n")
			}
			line += len(chunk)
		case diffmatchpatch.DiffInsert:
			if !inHunk {
				fmt.Fprintf(&out, "@@ line %d @@\n", line)
				inHunk = true
			}
			for _, l := range chunk {
				out.WriteString("+" + l + "\n")
			}
		}
	}
	return out.String()
}

func splitDiffLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func sortURIs(uris []protocol.DocumentURI) {
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
}
