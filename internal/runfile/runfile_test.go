package runfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "401 Q0 FBIS3-1 0 12.5 STANDARD",
		Format(Line{Topic: "401", DocID: "FBIS3-1", Rank: 0, Score: 12.5}))
	assert.Equal(t, "401 Q0 LA-7 3 -0.647003 bm25",
		Format(Line{Topic: "401", DocID: "LA-7", Rank: 3, Score: -0.647003, Tag: "bm25"}))
}

func TestWriteThenParse(t *testing.T) {
	lines := []Line{
		{Topic: "402", DocID: "b", Rank: 0, Score: 2, Tag: DefaultTag},
		{Topic: "401", DocID: "a", Rank: 0, Score: 3.25, Tag: DefaultTag},
		{Topic: "402", DocID: "c", Rank: 1, Score: 1, Tag: DefaultTag},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, lines))

	run, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"402", "401"}, run.Topics)
	assert.Equal(t, []Entry{{0, "b", 2}, {1, "c", 1}}, run.Entries["402"])
	assert.Equal(t, []Entry{{0, "a", 3.25}}, run.Entries["401"])
}

func TestParseSkipsBlankLines(t *testing.T) {
	run, err := Parse(strings.NewReader("\n401 Q0 a 0 1 STANDARD\n   \n"))
	require.NoError(t, err)
	assert.Len(t, run.Entries["401"], 1)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few fields", "401 Q0 a 0 1\n"},
		{"bad rank", "401 Q0 a x 1 STANDARD\n"},
		{"bad score", "401 Q0 a 0 high STANDARD\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader("401 Q0 ok 0 1 STANDARD\n" + tt.input))
			assert.ErrorIs(t, err, apperrors.ErrMalformedRun)
			assert.ErrorContains(t, err, "line 2")
		})
	}
}

func TestSortTopics(t *testing.T) {
	topics := []string{"450", "99", "301", "abc", "302"}
	SortTopics(topics)
	assert.Equal(t, []string{"99", "301", "302", "450", "abc"}, topics)
}

func TestSortTopicsMixedIDsIsTotal(t *testing.T) {
	want := []string{"2", "10", "10a", "2b", "abc"}
	for _, in := range [][]string{
		{"10a", "2", "10", "abc", "2b"},
		{"2", "10a", "10", "2b", "abc"},
		{"abc", "2b", "10a", "10", "2"},
	} {
		topics := append([]string(nil), in...)
		SortTopics(topics)
		assert.Equal(t, want, topics, "input %v", in)
	}
}
