package bpe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytelevel/go-bpe/tokenizers/api"
)

// trainedOnAAAB returns a tokenizer trained with exactly one merge on the
// corpus "aaabaaab": pair (97,97) has frequency 4 and becomes id 260 ("aa").
func trainedOnAAAB(t *testing.T) *Tokenizer {
	t.Helper()
	tok := New(261)
	require.NoError(t, tok.Train("aaabaaab"))
	return tok
}

func TestTrain_SingleMerge(t *testing.T) {
	tok := trainedOnAAAB(t)

	require.Equal(t, 1, tok.NumMerges())
	id, ok := tok.merges[Pair{97, 97}]
	require.True(t, ok, "most frequent pair (97,97) should have been merged")
	assert.Equal(t, 260, id)

	expansion, ok := tok.TokenBytes(260)
	require.True(t, ok)
	assert.Equal(t, []byte("aa"), expansion)
}

func TestEncode_ReproducesTrainingSegmentation(t *testing.T) {
	tok := trainedOnAAAB(t)
	// Encode applies merges independently of training, but must arrive at the
	// same sequence training produced.
	assert.Equal(t, []int{260, 97, 98, 260, 97, 98}, tok.Encode("aaabaaab"))
}

func TestDecode_ReconstructsCorpus(t *testing.T) {
	tok := trainedOnAAAB(t)
	assert.Equal(t, "aaabaaab", tok.Decode([]int{260, 97, 98, 260, 97, 98}))
}

func TestEncode_Deterministic(t *testing.T) {
	tok := New(272)
	require.NoError(t, tok.Train("the quick brown fox jumps over the lazy dog. the dog did not mind."))

	text := "the lazy fox did not jump"
	first := tok.Encode(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, tok.Encode(text))
	}
}

func TestTrain_MergeCount(t *testing.T) {
	corpus := "it was the best of times, it was the worst of times, it was the age of wisdom, " +
		"it was the age of foolishness, it was the epoch of belief, it was the epoch of incredulity"
	const target = 280
	tok := New(target)
	require.NoError(t, tok.Train(corpus))
	assert.Equal(t, target-NumByteTokens-NumSpecialTokens, tok.NumMerges())
}

func TestTrain_VocabularyConsistency(t *testing.T) {
	tok := New(272)
	require.NoError(t, tok.Train("sells seashells by the seashore, the shells she sells are seashells"))

	for pair, id := range tok.merges {
		merged := tok.vocab[id]
		left := tok.vocab[pair.Left]
		right := tok.vocab[pair.Right]
		assert.Len(t, merged, len(left)+len(right),
			"vocab[%d] must be the concatenation of vocab[%d] and vocab[%d]", id, pair.Left, pair.Right)
		assert.Equal(t, string(left)+string(right), string(merged))
	}
}

func TestTrain_TieBreakFirstEncountered(t *testing.T) {
	// All three pairs of "abcd" occur once; (97,98) is scanned first and must
	// win the tie on every run.
	for i := 0; i < 10; i++ {
		tok := New(261)
		require.NoError(t, tok.Train("abcd"))
		id, ok := tok.merges[Pair{97, 98}]
		require.True(t, ok, "tie must be broken toward the first-encountered pair")
		assert.Equal(t, 260, id)
	}
}

func TestTrain_InsufficientData(t *testing.T) {
	tok := New(262) // needs 2 merges, but "ab" only supports 1
	err := tok.Train("ab")
	require.Error(t, err)

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 262, insufficient.RequestedVocabSize)
	assert.Equal(t, 261, insufficient.AchievedVocabSize)

	// State learned before the corpus ran out stays usable.
	assert.Equal(t, 1, tok.NumMerges())
	assert.Equal(t, []int{260}, tok.Encode("ab"))
	assert.Equal(t, "ab", tok.Decode([]int{260}))
}

func TestTrain_EmptyCorpus(t *testing.T) {
	tok := New(261)
	err := tok.Train("")
	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, FirstMergeID, insufficient.AchievedVocabSize)
}

func TestTrain_NoMergesRequested(t *testing.T) {
	tok := New(FirstMergeID)
	require.NoError(t, tok.Train("anything at all"))
	assert.Equal(t, 0, tok.NumMerges())
}

func TestRoundTrip(t *testing.T) {
	tok := New(270)
	require.NoError(t, tok.Train("pack my box with five dozen liquor jugs, pack them tight"))

	for _, text := range []string{
		"pack my box",
		"five dozen jugs",
		"completely unrelated input text",
		"ünïcödé 文字 🙂",
		"",
	} {
		assert.Equal(t, text, tok.Decode(tok.Encode(text)), "round trip failed for %q", text)
	}
}

// Bytes 0..3 share their ids with the special tokens, so they are dropped on
// decode. This documents the behavior rather than endorsing it.
func TestRoundTrip_LowBytesCollideWithSpecials(t *testing.T) {
	tok := New(FirstMergeID)
	require.NoError(t, tok.Train("aaabaaab"))

	ids := tok.Encode("a\x00b")
	assert.Equal(t, []int{97, 0, 98}, ids)
	assert.Equal(t, "ab", tok.Decode(ids), "the NUL byte is lost: id 0 is the PAD token")
}

func TestDecode_Total(t *testing.T) {
	tok := New(FirstMergeID)

	// Unknown ids are skipped, not errors.
	assert.Equal(t, "", tok.Decode([]int{99999}))
	// Invalid UTF-8 decodes to the replacement character.
	assert.Equal(t, "�", tok.Decode([]int{0xC3}))
	// Special tokens are dropped wherever they occur.
	assert.Equal(t, "xy", tok.Decode([]int{BosID, 120, PadID, 121, EosID}))
	// Nil input is fine.
	assert.Equal(t, "", tok.Decode(nil))
}

func TestEncode_EmptyText(t *testing.T) {
	tok := New(FirstMergeID)
	assert.Empty(t, tok.Encode(""))
}

func TestAddSpecialTokens(t *testing.T) {
	tok := New(FirstMergeID)
	assert.Equal(t, []int{BosID, 104, 105, EosID}, tok.AddSpecialTokens([]int{104, 105}))
	assert.Equal(t, []int{BosID, EosID}, tok.AddSpecialTokens(nil))
}

func TestSpecialTokenID(t *testing.T) {
	tok := New(FirstMergeID)
	for _, tc := range []struct {
		token api.SpecialToken
		want  int
	}{
		{api.TokPad, PadID},
		{api.TokUnknown, UnkID},
		{api.TokBeginningOfSequence, BosID},
		{api.TokEndOfSequence, EosID},
	} {
		id, err := tok.SpecialTokenID(tc.token)
		require.NoError(t, err)
		assert.Equal(t, tc.want, id)
	}

	_, err := tok.SpecialTokenID(api.TokSpecialTokensCount)
	assert.Error(t, err)
}

func TestPairStats(t *testing.T) {
	counts, order := pairStats([]int{97, 97, 97, 98, 97, 97, 97, 98})

	assert.Equal(t, 4, counts[Pair{97, 97}])
	assert.Equal(t, 2, counts[Pair{97, 98}])
	assert.Equal(t, 1, counts[Pair{98, 97}])
	// Scan order is preserved for the training tie-break.
	assert.Equal(t, []Pair{{97, 97}, {97, 98}, {98, 97}}, order)

	counts, order = pairStats([]int{42})
	assert.Empty(t, counts)
	assert.Empty(t, order)
}

func TestMergePair_NonOverlapping(t *testing.T) {
	// "aaa" contains (a,a) twice overlapping; only the leftmost is replaced.
	assert.Equal(t, []int{260, 97}, mergePair([]int{97, 97, 97}, Pair{97, 97}, 260))
	assert.Equal(t, []int{260, 260}, mergePair([]int{97, 97, 97, 97}, Pair{97, 97}, 260))
	assert.Equal(t, []int{260, 97, 98, 260, 97, 98},
		mergePair([]int{97, 97, 97, 98, 97, 97, 97, 98}, Pair{97, 97}, 260))
	// Pair absent: sequence unchanged.
	assert.Equal(t, []int{1, 2, 3}, mergePair([]int{1, 2, 3}, Pair{9, 9}, 260))
}
