package fusion

import (
	"path/filepath"
	"sort"
	"strings"
)

// Methods lists every fusion method in the order a folder fusion runs them.
var Methods = []Method{MethodMinRank, MethodInterpolation, MethodBorda}

// Pair names two run files fused together.
type Pair struct {
	A, B string
}

// Pairs returns every unordered pair of names. Names are sorted first, and
// within a pair A sorts before B.
func Pairs(names []string) []Pair {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	var out []Pair
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			out = append(out, Pair{A: sorted[i], B: sorted[j]})
		}
	}
	return out
}

// OutputName names the fused run of p under m, e.g.
// "borda_output_bm25+output_ql-dir.txt".
func (p Pair) OutputName(m Method) string {
	stem := func(name string) string {
		base := filepath.Base(name)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return m.String() + "_" + stem(p.A) + "+" + stem(p.B) + ".txt"
}
