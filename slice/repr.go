package slice

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Repr renders a compact one-line representation: schema, shape, and the
// leading elements.
func (ds *DataSlice) Repr() string {
	const maxItems = 8
	var b strings.Builder
	fmt.Fprintf(&b, "DataSlice(%s, shape=%s, [", ds.sch, ds.sh)
	for i, v := range ds.values {
		if i == maxItems {
			fmt.Fprintf(&b, ", ... +%d", len(ds.values)-maxItems)
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteString("])")
	return b.String()
}

// Table renders the slice as an aligned two-column table of flat index and
// value, used by the inspection CLI. Column widths account for wide runes.
func (ds *DataSlice) Table() string {
	rows := make([][2]string, len(ds.values))
	widths := [2]int{len("index"), len("value")}
	for i, v := range ds.values {
		rows[i] = [2]string{fmt.Sprintf("%d", i), v.String()}
		for c := 0; c < 2; c++ {
			if w := runewidth.StringWidth(rows[i][c]); w > widths[c] {
				widths[c] = w
			}
		}
	}
	var b strings.Builder
	writeRow := func(cells [2]string) {
		for c := 0; c < 2; c++ {
			b.WriteString(cells[c])
			b.WriteString(strings.Repeat(" ", widths[c]-runewidth.StringWidth(cells[c])))
			if c == 0 {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	writeRow([2]string{"index", "value"})
	writeRow([2]string{strings.Repeat("-", widths[0]), strings.Repeat("-", widths[1])})
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
