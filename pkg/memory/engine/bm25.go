package engine

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"did": {}, "do": {}, "for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {},
	"her": {}, "him": {}, "his": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {}, "she": {}, "so": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {}, "they": {},
	"this": {}, "to": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// Tokenize lowercases text and splits it into keyword terms, dropping
// stopwords and single-character tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// bm25Index scores query terms against a fixed corpus of documents.
type bm25Index struct {
	tf     []map[string]int
	length []int
	avgLen float64
	df     map[string]int
	k1, b  float64
}

func newBM25Index(docs []string, k1, b float64) *bm25Index {
	ix := &bm25Index{
		tf:     make([]map[string]int, len(docs)),
		length: make([]int, len(docs)),
		df:     make(map[string]int),
		k1:     k1,
		b:      b,
	}
	total := 0
	for i, doc := range docs {
		terms := Tokenize(doc)
		counts := make(map[string]int, len(terms))
		for _, t := range terms {
			counts[t]++
		}
		for t := range counts {
			ix.df[t]++
		}
		ix.tf[i] = counts
		ix.length[i] = len(terms)
		total += len(terms)
	}
	if len(docs) > 0 {
		ix.avgLen = float64(total) / float64(len(docs))
	}
	return ix
}

func (ix *bm25Index) idf(term string) float64 {
	n := float64(len(ix.tf))
	df := float64(ix.df[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// score sums the BM25 weight of each distinct query term found in doc i.
func (ix *bm25Index) score(i int, terms []string) float64 {
	if i < 0 || i >= len(ix.tf) || ix.length[i] == 0 {
		return 0
	}
	norm := 1.0
	if ix.avgLen > 0 {
		norm = 1 - ix.b + ix.b*float64(ix.length[i])/ix.avgLen
	}
	seen := make(map[string]struct{}, len(terms))
	var total float64
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		tf := float64(ix.tf[i][term])
		if tf == 0 {
			continue
		}
		total += ix.idf(term) * tf * (ix.k1 + 1) / (tf + ix.k1*norm)
	}
	return total
}
