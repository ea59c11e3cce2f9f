package extract

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the text layer of a PDF, rebuilding line structure from
// glyph positions. Returns an error for documents without a readable text
// layer (scanned sheets land here and fall through to OCR).
func pdfText(data []byte) (text string, err error) {
	// the pdf library panics on malformed documents
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf text: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		writePageLines(&sb, page.Content())
	}
	return sb.String(), nil
}

// writePageLines groups glyph runs into visual rows. PDF y-coordinates grow
// upward, so rows are emitted top to bottom by descending y.
func writePageLines(sb *strings.Builder, content pdf.Content) {
	rows := make(map[int][]pdf.Text)
	for _, t := range content.Text {
		y := int(t.Y + 0.5)
		rows[y] = append(rows[y], t)
	}

	ys := make([]int, 0, len(rows))
	for y := range rows {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	for _, y := range ys {
		runs := rows[y]
		sort.Slice(runs, func(a, b int) bool { return runs[a].X < runs[b].X })

		var line strings.Builder
		lastEnd := -1.0
		for _, run := range runs {
			// a visible horizontal gap separates table cells
			if lastEnd >= 0 && run.X-lastEnd > run.FontSize {
				line.WriteByte(' ')
			}
			line.WriteString(run.S)
			lastEnd = run.X + run.W
		}

		text := strings.TrimSpace(line.String())
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
}
