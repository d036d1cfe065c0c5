package bpe

import (
	"fmt"

	"github.com/pkg/errors"
)

// InsufficientDataError is returned by Train when the corpus supports fewer
// merges than the target vocabulary size requires. The tokenizer keeps the
// merges learned before the corpus ran out and remains usable.
type InsufficientDataError struct {
	// RequestedVocabSize is the target vocabulary size Train was asked for.
	RequestedVocabSize int
	// AchievedVocabSize is the vocabulary size actually reached.
	AchievedVocabSize int
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("corpus exhausted: achieved vocabulary size %d of requested %d",
		e.AchievedVocabSize, e.RequestedVocabSize)
}

// ErrCorruptState reports that Load found malformed, inconsistent or missing
// tokenizer state on disk. Check for it with errors.Is.
var ErrCorruptState = errors.New("corrupt tokenizer state")
