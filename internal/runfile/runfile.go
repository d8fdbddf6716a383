// Package runfile reads and writes TREC run files: one ranked document per
// line as "<topic> Q0 <doc_id> <rank> <score> <tag>".
package runfile

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// DefaultTag is written in the last column when no run tag is configured.
const DefaultTag = "STANDARD"

type Line struct {
	Topic string
	DocID string
	Rank  int
	Score float64
	Tag   string
}

// Entry is one ranked document of a parsed run.
type Entry struct {
	Rank  int
	DocID string
	Score float64
}

// Run is a parsed run file. Entries keep file order within each topic and
// Topics keeps the order in which topics first appeared.
type Run struct {
	Topics  []string
	Entries map[string][]Entry
}

// Format renders l without a trailing newline.
func Format(l Line) string {
	tag := l.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return l.Topic + " Q0 " + l.DocID + " " + strconv.Itoa(l.Rank) + " " +
		strconv.FormatFloat(l.Score, 'g', -1, 64) + " " + tag
}

func Write(w io.Writer, lines []Line) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(Format(l)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseLine parses a single run line.
func ParseLine(s string) (Line, error) {
	fields := strings.Fields(s)
	if len(fields) != 6 {
		return Line{}, fmt.Errorf("%w: want 6 fields, got %d", apperrors.ErrMalformedRun, len(fields))
	}
	rank, err := strconv.Atoi(fields[3])
	if err != nil {
		return Line{}, fmt.Errorf("%w: rank %q", apperrors.ErrMalformedRun, fields[3])
	}
	score, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Line{}, fmt.Errorf("%w: score %q", apperrors.ErrMalformedRun, fields[4])
	}
	return Line{Topic: fields[0], DocID: fields[2], Rank: rank, Score: score, Tag: fields[5]}, nil
}

// Parse reads a whole run. Blank lines are ignored.
func Parse(r io.Reader) (*Run, error) {
	run := &Run{Entries: make(map[string][]Entry)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		l, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if _, ok := run.Entries[l.Topic]; !ok {
			run.Topics = append(run.Topics, l.Topic)
		}
		run.Entries[l.Topic] = append(run.Entries[l.Topic], Entry{Rank: l.Rank, DocID: l.DocID, Score: l.Score})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}
	return run, nil
}

// SortTopics orders integer topic ids numerically, followed by all other
// ids in string order.
func SortTopics(topics []string) {
	slices.SortFunc(topics, func(x, y string) int {
		a, errA := strconv.Atoi(x)
		b, errB := strconv.Atoi(y)
		switch {
		case errA == nil && errB == nil:
			if c := cmp.Compare(a, b); c != 0 {
				return c
			}
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		return strings.Compare(x, y)
	})
}
