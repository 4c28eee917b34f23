package seatgrid

import "strings"

// Band is a coarse seat zone: the front, middle or back third of a
// room's rows.
type Band string

const (
	BandFront  Band = "front"
	BandCenter Band = "center"
	BandBack   Band = "back"
)

// BandOf places row index i of a room with rowCount rows into one of
// three equal bands.
func BandOf(i, rowCount int) Band {
	if rowCount <= 0 || i < 0 {
		return BandCenter
	}
	if i >= rowCount {
		i = rowCount - 1
	}
	switch i * 3 / rowCount {
	case 0:
		return BandFront
	case 1:
		return BandCenter
	default:
		return BandBack
	}
}

// RowsInBand returns the indexes into g.Rows that fall in band b, front
// to back.
func (g *Grid) RowsInBand(b Band) []int {
	var out []int
	for i := range g.Rows {
		if BandOf(i, len(g.Rows)) == b {
			out = append(out, i)
		}
	}
	return out
}

// NormalizeRowLabel keeps ASCII letters only and upper-cases them, so
// " a " and "A" name the same row.
func NormalizeRowLabel(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RowLabelToIndex converts A, B, ..., Z, AA into its zero-based index.
func RowLabelToIndex(label string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if s == "" {
		return -1, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 'A' || ch > 'Z' {
			return -1, false
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1, true
}

// IndexToRowLabel is the inverse of RowLabelToIndex.
func IndexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []byte
	for {
		res = append(res, byte('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}
