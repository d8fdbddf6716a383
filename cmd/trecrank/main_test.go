package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
)

type failingCloser struct {
	bytes.Buffer
}

func (*failingCloser) Close() error { return errors.New("no space left on device") }

func sampleLines(topic string, docs ...string) []runfile.Line {
	lines := make([]runfile.Line, len(docs))
	for i, d := range docs {
		lines[i] = runfile.Line{Topic: topic, DocID: d, Rank: i, Score: float64(len(docs) - i), Tag: runfile.DefaultTag}
	}
	return lines
}

func TestWriteAndCloseReportsCloseError(t *testing.T) {
	w := &failingCloser{}
	err := writeAndClose(w, sampleLines("401", "d1"))
	assert.EqualError(t, err, "no space left on device")
	assert.Contains(t, w.String(), "401 Q0 d1 0")
}

func TestWriteRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	require.NoError(t, writeRunFile(path, sampleLines("401", "d1", "d2")))

	run, err := readRun(path)
	require.NoError(t, err)
	require.Len(t, run.Entries["401"], 2)
	assert.Equal(t, "d2", run.Entries["401"][1].DocID)

	err = writeRunFile(filepath.Join(t.TempDir(), "missing", "run.txt"), nil)
	assert.Error(t, err)
}

func TestFuseFolderWritesEveryPairAndMethod(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "fused")
	require.NoError(t, writeRunFile(filepath.Join(in, "output_bm25.txt"), sampleLines("401", "a", "b", "c")))
	require.NoError(t, writeRunFile(filepath.Join(in, "output_ql-dir.txt"), sampleLines("401", "c", "a", "d")))
	require.NoError(t, writeRunFile(filepath.Join(in, "output_ql-jm.txt"), sampleLines("401", "b", "d")))
	require.NoError(t, os.WriteFile(filepath.Join(in, ".DS_Store"), []byte("junk"), 0o644))

	written, err := fuseFolder(in, out, fusion.Methods, 1000, "fused")
	require.NoError(t, err)
	assert.Equal(t, 9, written)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 9)

	run, err := readRun(filepath.Join(out, "min_output_bm25+output_ql-dir.txt"))
	require.NoError(t, err)
	var docs []string
	for _, e := range run.Entries["401"] {
		docs = append(docs, e.DocID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, docs)
	assert.FileExists(t, filepath.Join(out, "borda_output_ql-dir+output_ql-jm.txt"))
	assert.FileExists(t, filepath.Join(out, "interp_output_bm25+output_ql-jm.txt"))
}

func TestFuseFolderNeedsTwoRuns(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, writeRunFile(filepath.Join(in, "only.txt"), sampleLines("401", "a")))
	_, err := fuseFolder(in, t.TempDir(), fusion.Methods, 1000, "fused")
	assert.ErrorContains(t, err, "need at least two run files")
}
