// Package bpe implements a trainable byte-level Byte-Pair-Encoding tokenizer.
//
// Training learns a merge table from a corpus: the most frequent adjacent
// pair of token ids is repeatedly replaced by a freshly assigned id until the
// target vocabulary size is reached. Encoding replays the learned merges in
// learning order (lowest merge id first); decoding concatenates the byte
// expansion of each id and interprets the result as UTF-8.
//
// A Tokenizer is mutable only through Train (or at construction by Load);
// afterwards the vocabulary and merge table are never written again, so a
// trained instance is safe for concurrent Encode/Decode calls.
package bpe

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bytelevel/go-bpe/internal/corpus"
	"github.com/bytelevel/go-bpe/tokenizers/api"
)

const (
	// NumByteTokens is the number of base tokens, one per possible byte value.
	NumByteTokens = 256

	// Reserved special-token ids. They overlay the byte tokens 0..3: a raw
	// byte with one of these values decodes as the special token (i.e. it is
	// dropped by Decode). This numbering is kept for compatibility with
	// existing saved models.
	PadID = 0
	UnkID = 1
	BosID = 2
	EosID = 3

	// NumSpecialTokens is the number of reserved special tokens.
	NumSpecialTokens = 4

	// FirstMergeID is the id assigned to the first learned merge.
	FirstMergeID = NumByteTokens + NumSpecialTokens

	// DefaultVocabSize is the target vocabulary size used when none is given.
	DefaultVocabSize = 1024
)

// Pair is an ordered pair of adjacent token ids.
type Pair struct {
	Left, Right int
}

// Tokenizer is a byte-level BPE tokenizer.
//
// The zero value is not usable; create instances with New or Load.
type Tokenizer struct {
	// vocabSize is the training-time target vocabulary size.
	vocabSize int
	// vocab maps every id to the byte string it expands to.
	vocab map[int][]byte
	// merges maps an adjacent id pair to the id that replaces it. The merged
	// id doubles as the merge priority: lower id = learned earlier = applied
	// first at encode time.
	merges map[Pair]int
}

// Compile time assert that *Tokenizer implements the api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// New creates an untrained tokenizer targeting the given vocabulary size.
// vocabSize <= 0 selects DefaultVocabSize.
func New(vocabSize int) *Tokenizer {
	if vocabSize <= 0 {
		vocabSize = DefaultVocabSize
	}
	t := &Tokenizer{vocabSize: vocabSize}
	t.reset()
	return t
}

// reset restores the base vocabulary (256 byte tokens with the special tokens
// overlaid on ids 0..3) and clears the merge table.
func (t *Tokenizer) reset() {
	t.vocab = make(map[int][]byte, t.vocabSize)
	for b := 0; b < NumByteTokens; b++ {
		t.vocab[b] = []byte{byte(b)}
	}
	t.vocab[PadID] = []byte("<PAD>")
	t.vocab[UnkID] = []byte("<UNK>")
	t.vocab[BosID] = []byte("<BOS>")
	t.vocab[EosID] = []byte("<EOS>")
	t.merges = make(map[Pair]int)
}

// Train learns the merge table and vocabulary from the given corpus,
// replacing any previously learned state.
//
// It performs vocabSize-256-4 merge iterations. Each iteration recounts the
// adjacent-pair frequencies of the whole working sequence, picks the most
// frequent pair (first-encountered pair wins ties, which keeps training
// deterministic), assigns it the next sequential id and rewrites the
// sequence.
//
// If the corpus runs out of mergeable pairs before the target vocabulary
// size is reached, Train stops early and returns an *InsufficientDataError
// reporting the achieved vocabulary size. The state learned up to that point
// is kept and remains fully usable.
func (t *Tokenizer) Train(text string) error {
	t.reset()

	chunks, err := splitChunks(text)
	if err != nil {
		return errors.WithMessagef(err, "pre-tokenizing training corpus")
	}
	// Chunk boundaries are not kept as separators: the chunks are rejoined
	// into one byte stream before counting, so merges may span them.
	var stream []byte
	for _, chunk := range chunks {
		stream = append(stream, chunk...)
	}
	ids := make([]int, len(stream))
	for i, b := range stream {
		ids[i] = int(b)
	}

	numMerges := t.vocabSize - NumByteTokens - NumSpecialTokens
	if numMerges <= 0 {
		klog.V(1).Infof("bpe: vocab size %d requires no merges, nothing to train", t.vocabSize)
		return nil
	}
	klog.V(1).Infof("bpe: training on %d bytes, %d merges requested", len(stream), numMerges)

	for i := 0; i < numMerges; i++ {
		counts, order := pairStats(ids)
		if len(order) == 0 {
			achieved := FirstMergeID + len(t.merges)
			klog.V(1).Infof("bpe: corpus exhausted after %d merges (vocab size %d of %d)",
				len(t.merges), achieved, t.vocabSize)
			return errors.WithStack(&InsufficientDataError{
				RequestedVocabSize: t.vocabSize,
				AchievedVocabSize:  achieved,
			})
		}

		best := order[0]
		for _, p := range order[1:] {
			if counts[p] > counts[best] {
				best = p
			}
		}

		id := FirstMergeID + i
		ids = mergePair(ids, best, id)
		t.merges[best] = id
		t.vocab[id] = concatBytes(t.vocab[best.Left], t.vocab[best.Right])

		if klog.V(2).Enabled() {
			klog.Infof("bpe: merge %d/%d (%d,%d) -> %d freq=%d seq_len=%d",
				i+1, numMerges, best.Left, best.Right, id, counts[best], len(ids))
		}
	}
	klog.V(1).Infof("bpe: training done, vocab size %d, %d merges", t.vocabSize, len(t.merges))
	return nil
}

// TrainFile trains the tokenizer on the contents of the file at path,
// memory-mapping it to avoid a double copy for large corpora.
func (t *Tokenizer) TrainFile(path string) error {
	f, err := corpus.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	text, err := f.Text()
	if err != nil {
		return err
	}
	return t.Train(text)
}

// Encode converts text to a sequence of token ids.
//
// The text's UTF-8 bytes seed the sequence, one id per byte. Then the pair
// with the lowest registered merge id among the pairs present in the
// sequence is rewritten, until no present pair is in the merge table. Note
// encode does not apply the pre-tokenizer; only Train does.
func (t *Tokenizer) Encode(text string) []int {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}

	for len(ids) >= 2 {
		_, order := pairStats(ids)
		best := Pair{}
		bestID := -1
		for _, p := range order {
			if id, ok := t.merges[p]; ok && (bestID < 0 || id < bestID) {
				best, bestID = p, id
			}
		}
		if bestID < 0 {
			break
		}
		ids = mergePair(ids, best, bestID)
	}
	return ids
}

// Decode converts a sequence of token ids back to text.
//
// Special-token ids are dropped wherever they occur, unknown ids are
// skipped, and invalid UTF-8 in the reassembled bytes is replaced with
// U+FFFD. Decode never fails.
func (t *Tokenizer) Decode(ids []int) string {
	var buf []byte
	for _, id := range ids {
		if id >= 0 && id < NumSpecialTokens {
			continue
		}
		if b, ok := t.vocab[id]; ok {
			buf = append(buf, b...)
		}
	}
	return strings.ToValidUTF8(string(buf), "�")
}

// AddSpecialTokens wraps ids with the begin- and end-of-sequence markers.
func (t *Tokenizer) AddSpecialTokens(ids []int) []int {
	out := make([]int, 0, len(ids)+2)
	out = append(out, BosID)
	out = append(out, ids...)
	out = append(out, EosID)
	return out
}

// SpecialTokenID returns the id for the given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokPad:
		return PadID, nil
	case api.TokUnknown:
		return UnkID, nil
	case api.TokBeginningOfSequence:
		return BosID, nil
	case api.TokEndOfSequence:
		return EosID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}

// VocabSize returns the target vocabulary size the tokenizer was configured
// (or trained) with.
func (t *Tokenizer) VocabSize() int {
	return t.vocabSize
}

// NumMerges returns the number of learned merge rules.
func (t *Tokenizer) NumMerges() int {
	return len(t.merges)
}

// TokenBytes returns a copy of the byte string a token id expands to.
func (t *Tokenizer) TokenBytes(id int) ([]byte, bool) {
	b, ok := t.vocab[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

// concatBytes concatenates two byte slices into a new slice.
func concatBytes(a, b []byte) []byte {
	c := make([]byte, len(a)+len(b))
	copy(c, a)
	copy(c[len(a):], b)
	return c
}
