package topk

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectorKeepsBest(t *testing.T) {
	s := New(3)
	s.Push(1.0, "a")
	s.Push(5.0, "b")
	s.Push(3.0, "c")
	s.Push(0.5, "d")
	s.Push(4.0, "e")

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []Entry{{5.0, "b"}, {4.0, "e"}, {3.0, "c"}}, s.Results())
}

func TestSelectorTieBreaksOnHigherDocID(t *testing.T) {
	s := New(2)
	s.Push(1.0, "b")
	s.Push(1.0, "a")
	s.Push(1.0, "c")

	assert.Equal(t, []Entry{{1.0, "c"}, {1.0, "b"}}, s.Results())
}

func TestSelectorNonPositiveK(t *testing.T) {
	for _, k := range []int{0, -1} {
		s := New(k)
		s.Push(1, "a")
		assert.Equal(t, 0, s.Len())
		assert.Empty(t, s.Results())
	}
}

func TestSelectorMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var all []Entry
	s := New(25)
	for i := 0; i < 500; i++ {
		e := Entry{Score: float64(rng.Intn(40)), DocID: "doc" + strconv.Itoa(i)}
		all = append(all, e)
		s.Push(e.Score, e.DocID)
	}
	sort.Slice(all, func(i, j int) bool { return less(all[j], all[i]) })
	assert.Equal(t, all[:25], s.Results())
}

func BenchmarkSelectorPush(b *testing.B) {
	ids := make([]string, 1024)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	s := New(1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Push(float64(i%977), ids[i%len(ids)])
	}
}
