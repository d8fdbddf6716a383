// Package corpus reads TREC SGML document collections and topic files.
// It is the only place that knows about the on-disk formats; everything
// downstream sees Documents and Topics.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Document is one <DOC> block. Text is empty when the block had no <TEXT>
// element; the index builder excludes such documents.
type Document struct {
	ID   string
	Text string
}

const maxLineSize = 4 * 1024 * 1024

// ParseDocuments streams <DOC> blocks from r and calls fn for each one in
// file order. Only the first <TEXT> element of a document is kept, and
// lines inside it that start with '<' (embedded markup) are dropped.
func ParseDocuments(r io.Reader, fn func(Document) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		inDoc, inText, sawText bool
		doc                    Document
		text                   strings.Builder
		lineNo                 int
	)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "<DOC>":
			inDoc, inText, sawText = true, false, false
			doc = Document{}
			text.Reset()
			continue
		case trimmed == "</DOC>":
			if !inDoc {
				return fmt.Errorf("line %d: </DOC> without <DOC>", lineNo)
			}
			if doc.ID == "" {
				return fmt.Errorf("line %d: document without <DOCNO>", lineNo)
			}
			doc.Text = text.String()
			if err := fn(doc); err != nil {
				return err
			}
			inDoc, inText = false, false
			continue
		}
		if !inDoc {
			continue
		}
		if id, ok := inlineElement(trimmed, "DOCNO"); ok {
			doc.ID = id
			continue
		}
		if inText {
			if idx := strings.Index(line, "</TEXT>"); idx >= 0 {
				appendTextLine(&text, line[:idx])
				inText = false
				continue
			}
			appendTextLine(&text, line)
			continue
		}
		if !sawText && strings.HasPrefix(trimmed, "<TEXT>") {
			sawText = true
			rest := strings.TrimPrefix(trimmed, "<TEXT>")
			if idx := strings.Index(rest, "</TEXT>"); idx >= 0 {
				appendTextLine(&text, rest[:idx])
				continue
			}
			appendTextLine(&text, rest)
			inText = true
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scanning documents: %w", err)
	}
	if inDoc {
		return fmt.Errorf("unterminated <DOC> at end of input")
	}
	return nil
}

// ReadDir walks dir and parses every regular, non-hidden file as a
// latin-1 encoded TREC document file.
func ReadDir(dir string, fn func(Document) error) error {
	logger := slog.Default().With("component", "corpus")
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		count := 0
		err = ParseDocuments(charmap.ISO8859_1.NewDecoder().Reader(f), func(doc Document) error {
			count++
			return fn(doc)
		})
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		logger.Debug("corpus file read", "path", path, "documents", count)
		return nil
	})
}

func inlineElement(line, tag string) (string, bool) {
	open, closing := "<"+tag+">", "</"+tag+">"
	if !strings.HasPrefix(line, open) || !strings.HasSuffix(line, closing) {
		return "", false
	}
	return strings.TrimSpace(line[len(open) : len(line)-len(closing)]), true
}

// appendTextLine adds one body line. Blank lines and markup lines are
// dropped, so a closing tag on its own line leaves no trailing newline.
func appendTextLine(b *strings.Builder, line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(line)
}
