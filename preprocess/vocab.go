package preprocess

import (
	"sort"
	"strings"

	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// ErrEmptyVocabulary is returned when captions have no token at all.
// It wraps datasets.ErrValidation.
var ErrEmptyVocabulary = errors.Wrap(datasets.ErrValidation, "empty vocabulary")

// Vocabulary is the set of distinct tokens of a caption collection.
type Vocabulary struct {
	sets.Set[string]
}

// asciiPunctuation is Python's string.punctuation.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var punctuationStripper = strings.NewReplacer(punctuationPairs()...)

func punctuationPairs() []string {
	pairs := make([]string, 0, 2*len(asciiPunctuation))
	for _, r := range asciiPunctuation {
		pairs = append(pairs, string(r), "")
	}
	return pairs
}

// Tokenize strips ASCII punctuation from text and splits it on whitespace.
// Case is preserved.
func Tokenize(text string) []string {
	return strings.Fields(punctuationStripper.Replace(text))
}

// ExtractVocabulary returns the distinct tokens of all captions, visited in
// key then caption order and joined with single spaces.
func ExtractVocabulary(captions datasets.Captions) (*Vocabulary, error) {
	var all []string
	for _, key := range captions.Keys() {
		all = append(all, captions[key]...)
	}
	tokens := Tokenize(strings.Join(all, " "))
	vocab := &Vocabulary{Set: sets.MakeWith(tokens...)}
	delete(vocab.Set, "")
	if len(vocab.Set) == 0 {
		return nil, errors.Wrapf(ErrEmptyVocabulary, "%d captions of %d images", captions.NumCaptions(), len(captions))
	}
	return vocab, nil
}

// Len returns the number of distinct tokens.
func (v *Vocabulary) Len() int { return len(v.Set) }

// Tokens returns the tokens sorted.
func (v *Vocabulary) Tokens() []string {
	tokens := make([]string, 0, len(v.Set))
	for t := range v.Set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// Reserved tokens of an Index, with fixed indices.
const (
	PadToken   = "<pad>"
	UnkToken   = "<unk>"
	StartToken = "<start>"
	EndToken   = "<end>"

	PadIndex   int32 = 0
	UnkIndex   int32 = 1
	StartIndex int32 = 2
	EndIndex   int32 = 3
)

var reservedTokens = []string{PadToken, UnkToken, StartToken, EndToken}

// Index maps tokens to the integer indices fed to the captioning model.
// Index 0 is padding; the vocabulary tokens follow the reserved ones in
// sorted order.
type Index struct {
	tokens  []string
	indices map[string]int32
}

var _ datasets.Encoder = (*Index)(nil)

// Index creates the token index of the vocabulary.
func (v *Vocabulary) Index() *Index {
	tokens := append(append([]string(nil), reservedTokens...), v.Tokens()...)
	idx := &Index{tokens: tokens, indices: make(map[string]int32, len(tokens))}
	for i, t := range tokens {
		idx.indices[t] = int32(i)
	}
	return idx
}

// Size is the number of indices, the vocabulary size of the model.
func (idx *Index) Size() int { return len(idx.tokens) }

// Lookup returns the index of token, UnkIndex if unknown.
func (idx *Index) Lookup(token string) int32 {
	if i, ok := idx.indices[token]; ok {
		return i
	}
	return UnkIndex
}

// Token returns the token of index i, UnkToken if out of range.
func (idx *Index) Token(i int32) string {
	if i < 0 || int(i) >= len(idx.tokens) {
		return UnkToken
	}
	return idx.tokens[i]
}

// Encode tokenizes caption and returns [StartIndex, tokens..., EndIndex].
func (idx *Index) Encode(caption string) []int32 {
	words := Tokenize(caption)
	seq := make([]int32, 0, len(words)+2)
	seq = append(seq, StartIndex)
	for _, w := range words {
		seq = append(seq, idx.Lookup(w))
	}
	return append(seq, EndIndex)
}

// Decode converts indices back to a caption, skipping the reserved tokens
// other than <unk>, and stopping at <end>.
func (idx *Index) Decode(seq []int32) string {
	words := make([]string, 0, len(seq))
	for _, i := range seq {
		switch i {
		case EndIndex:
			return strings.Join(words, " ")
		case PadIndex, StartIndex:
			continue
		}
		words = append(words, idx.Token(i))
	}
	return strings.Join(words, " ")
}
