package bpe

import (
	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
)

// SplitPattern is the GPT-4 style pattern used to segment training text into
// chunks. Alternatives, first match wins:
//
//   - '(?i:[sdmt]|ll|ve|re): apostrophe contractions ('s, 'd, 'm, 't, 'll, 've, 're).
//   - (?>[^\r\n\p{L}\p{N}]?)\p{L}+: a letter run, optionally led by one
//     non-letter/non-digit/non-newline character.
//   - \p{N}{1,3}: a digit run of at most three digits.
//   - ?(?>[^\s\p{L}\p{N}]+)[\r\n]*: a punctuation run with optional leading
//     space and trailing newlines.
//   - \s*[\r\n]: a newline run.
//   - \s+(?!\S): trailing whitespace not followed by non-space.
//   - \s+: any remaining whitespace run.
//
// regexp2 has no possessive quantifiers, so atomic groups (?>...) stand in
// for them. The stdlib regexp package cannot express the (?!\S) lookahead at
// all, which is why regexp2 is used here.
const SplitPattern = `'(?i:[sdmt]|ll|ve|re)|(?>[^\r\n\p{L}\p{N}]?)\p{L}+|\p{N}{1,3}| ?(?>[^\s\p{L}\p{N}]+)[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`

var splitRegexp = regexp2.MustCompile(SplitPattern, regexp2.None)

// splitChunks segments text into pre-tokenizer chunks. Every byte of the
// input lands in exactly one chunk, in order, so rejoining the chunks
// reproduces the original byte stream.
func splitChunks(text string) ([]string, error) {
	var chunks []string
	m, err := splitRegexp.FindStringMatch(text)
	if err != nil {
		return nil, errors.Wrapf(err, "matching pre-tokenizer pattern")
	}
	for m != nil {
		chunks = append(chunks, m.String())
		m, err = splitRegexp.FindNextMatch(m)
		if err != nil {
			return nil, errors.Wrapf(err, "matching pre-tokenizer pattern")
		}
	}
	return chunks, nil
}
