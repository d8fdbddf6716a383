// Package tokenizer turns raw TREC text into the normalized term sequence
// the index and the query side share: entity references are unescaped,
// punctuation and digits become separators, text is lower-cased, stopwords
// are dropped and the remaining words are Porter2-stemmed.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// DefaultStopwords is used when no list is configured.
var DefaultStopwords = []string{"the"}

// entityReplacer maps the SGML entity references found in TREC volumes 4
// and 5 to a plain letter or a separator.
var entityReplacer = strings.NewReplacer(
	"&lt;", " ", "&gt;", " ", "&amp;", " ", "&apos;", " ", "&quot;", " ",
	"&sect;", " ", "&hyph;", " ", "&blank;", " ", "&mu;", " ", "&ge;", " ",
	"&para;", " ", "&bull;", " ", "&reg;", " ", "&times;", " ", "&cir;", " ",
	"&rsquo;", " ", "&cent;", "c",
	"&pacute;", "p", "&racute;", "r", "&cacute;", "c", "&ccedil;", "c",
	"&acirc;", "a", "&ntilde;", "n", "&agrave;", "a", "&ugrave;", "u",
	"&ograve;", "o", "&iuml;", "i", "&ocirc;", "o", "&lacute;", "l",
	"&auml;", "a", "&euml;", "e", "&ncirc;", "n", "&ouml;", "o",
	"&eacute;", "e", "&utilde;", "u", "&uacute;", "u", "&sacute;", "s",
	"&iacute;", "i", "&oacute;", "o", "&egrave;", "e", "&igrave;", "i",
	"&aacute;", "a", "&uuml;", "u",
)

// Normalizer is safe for concurrent use once constructed.
type Normalizer struct {
	stopwords map[string]struct{}
}

// New builds a Normalizer with the given stopword list. A nil list selects
// DefaultStopwords; an empty non-nil list disables stopping.
func New(stopwords []string) *Normalizer {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Normalizer{stopwords: set}
}

// Normalize returns the ordered terms of text. Repeated words are kept.
func (n *Normalizer) Normalize(text string) []string {
	text = entityReplacer.Replace(text)
	words := strings.FieldsFunc(text, isSeparator)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(word)
		if _, isStop := n.stopwords[word]; isStop {
			continue
		}
		stemmed := english.Stem(word, false)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// isSeparator treats punctuation, symbols, digits and whitespace as word
// boundaries.
func isSeparator(r rune) bool {
	return !unicode.IsLetter(r)
}
