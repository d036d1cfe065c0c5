// Package api defines the Tokenizer API shared by the concrete tokenizer
// implementations, so consumers (model code, data pipelines) can depend on
// the interface without pulling in a particular implementation.
package api

// Tokenizer converts text to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic
// (like padding) that may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string

	// SpecialTokenID returns the id for the given special token if registered,
	// or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokPad SpecialToken = iota
	TokUnknown
	TokBeginningOfSequence
	TokEndOfSequence
	TokSpecialTokensCount
)

// String implements fmt.Stringer.
func (s SpecialToken) String() string {
	switch s {
	case TokPad:
		return "pad"
	case TokUnknown:
		return "unknown"
	case TokBeginningOfSequence:
		return "beginning_of_sequence"
	case TokEndOfSequence:
		return "end_of_sequence"
	default:
		return "invalid"
	}
}
