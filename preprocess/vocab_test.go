package preprocess

import (
	"strings"
	"testing"

	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVocabulary(t *testing.T) {
	captions := datasets.Captions{"a.jpg": {"a cat.", "A Cat!"}}
	vocab, err := ExtractVocabulary(captions)
	require.NoError(t, err)
	assert.True(t, vocab.Set.Equal(sets.MakeWith("a", "cat", "A", "Cat")), "got %v", vocab.Tokens())
	assert.Equal(t, 4, vocab.Len())

	// Idempotent.
	again, err := ExtractVocabulary(captions)
	require.NoError(t, err)
	assert.True(t, vocab.Set.Equal(again.Set))
}

func TestExtractVocabulary_Punctuation(t *testing.T) {
	captions := datasets.Captions{
		"b.jpg": {"a dog's toy  --  (red),  on   the grass..."},
		"a.jpg": {"\"Hello\", world!", "    "},
	}
	vocab, err := ExtractVocabulary(captions)
	require.NoError(t, err)
	for _, token := range vocab.Tokens() {
		require.NotEmpty(t, token)
		assert.False(t, strings.ContainsAny(token, asciiPunctuation), "token %q has punctuation", token)
	}
	assert.Equal(t, []string{"Hello", "a", "dogs", "grass", "on", "red", "the", "toy", "world"}, vocab.Tokens())
}

func TestExtractVocabulary_Empty(t *testing.T) {
	for _, captions := range []datasets.Captions{
		{},
		{"a.jpg": {"...", "!!"}},
	} {
		_, err := ExtractVocabulary(captions)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyVocabulary))
		assert.True(t, errors.Is(err, datasets.ErrValidation))
	}
}

func TestIndex(t *testing.T) {
	vocab, err := ExtractVocabulary(datasets.Captions{"a.jpg": {"the dog runs", "a dog"}})
	require.NoError(t, err)
	idx := vocab.Index()
	// 4 reserved + a, dog, runs, the.
	assert.Equal(t, 8, idx.Size())
	assert.Equal(t, PadIndex, idx.Lookup(PadToken))
	assert.Equal(t, int32(4), idx.Lookup("a"))
	assert.Equal(t, int32(7), idx.Lookup("the"))
	assert.Equal(t, UnkIndex, idx.Lookup("cat"))

	seq := idx.Encode("The dog, runs!")
	assert.Equal(t, []int32{StartIndex, UnkIndex, 5, 6, EndIndex}, seq)
	assert.Equal(t, "<unk> dog runs", idx.Decode(seq))
	assert.Equal(t, "a dog", idx.Decode([]int32{PadIndex, PadIndex, StartIndex, 4, 5, EndIndex, 7}))
	for _, i := range seq {
		assert.True(t, i >= 0 && int(i) < idx.Size())
	}
}
