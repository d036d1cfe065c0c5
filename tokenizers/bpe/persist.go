package bpe

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Persisted layout: a directory holding two named blobs.
const (
	vocabFileName  = "vocab"
	mergesFileName = "merges"
	lockFileName   = ".tokenizer.lock"
)

// DefaultDirCreationPerm is the permission used when creating the target
// directory of Save.
const DefaultDirCreationPerm = os.FileMode(0755)

// mergesBlob is the on-disk form of the merge table. The target vocabulary
// size travels with it so a loaded tokenizer restores its configuration, not
// just its encode/decode behavior.
type mergesBlob struct {
	VocabSize int         `json:"vocab_size"`
	Merges    []mergeRule `json:"merges"`
}

// mergeRule is one learned merge: the pair (Left, Right) rewrites to ID.
type mergeRule struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	ID    int `json:"id"`
}

// Save writes the vocabulary and merge table as the two blobs "vocab" and
// "merges" under dir, creating it if needed.
//
// Each blob is written to a uniquely named temporary file and atomically
// renamed into place, and the whole write happens under a file lock in dir,
// so a crashed or concurrent Save never leaves a partially written blob
// behind.
func (t *Tokenizer) Save(dir string) error {
	if err := os.MkdirAll(dir, DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create tokenizer directory %q", dir)
	}

	vocabData, err := json.Marshal(t.vocab)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize vocabulary")
	}

	blob := mergesBlob{VocabSize: t.vocabSize, Merges: make([]mergeRule, 0, len(t.merges))}
	for p, id := range t.merges {
		blob.Merges = append(blob.Merges, mergeRule{Left: p.Left, Right: p.Right, ID: id})
	}
	sort.Slice(blob.Merges, func(i, j int) bool { return blob.Merges[i].ID < blob.Merges[j].ID })
	mergesData, err := json.Marshal(&blob)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize merge table")
	}

	return execOnFileLock(filepath.Join(dir, lockFileName), func() error {
		if err := writeBlob(filepath.Join(dir, vocabFileName), vocabData); err != nil {
			return err
		}
		if err := writeBlob(filepath.Join(dir, mergesFileName), mergesData); err != nil {
			return err
		}
		klog.V(1).Infof("bpe: saved tokenizer to %q (%d vocab entries, %d merges)",
			dir, len(t.vocab), len(t.merges))
		return nil
	})
}

// Load reconstructs a tokenizer from a directory previously written by Save.
//
// Malformed, inconsistent or missing blobs make Load fail with an error
// matching ErrCorruptState; no partially loaded tokenizer is ever returned.
func Load(dir string) (*Tokenizer, error) {
	var vocabData, mergesData []byte
	err := execOnFileLock(filepath.Join(dir, lockFileName), func() error {
		var err error
		if vocabData, err = os.ReadFile(filepath.Join(dir, vocabFileName)); err != nil {
			return errors.Wrapf(ErrCorruptState, "reading vocab blob: %v", err)
		}
		if mergesData, err = os.ReadFile(filepath.Join(dir, mergesFileName)); err != nil {
			return errors.Wrapf(ErrCorruptState, "reading merges blob: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	vocab := make(map[int][]byte)
	if err := json.Unmarshal(vocabData, &vocab); err != nil {
		return nil, errors.Wrapf(ErrCorruptState, "decoding vocab blob: %v", err)
	}
	var blob mergesBlob
	if err := json.Unmarshal(mergesData, &blob); err != nil {
		return nil, errors.Wrapf(ErrCorruptState, "decoding merges blob: %v", err)
	}

	t := &Tokenizer{
		vocabSize: blob.VocabSize,
		vocab:     vocab,
		merges:    make(map[Pair]int, len(blob.Merges)),
	}
	if t.vocabSize <= 0 {
		// Blob predates vocab_size persistence.
		t.vocabSize = DefaultVocabSize
	}
	for _, rule := range blob.Merges {
		t.merges[Pair{rule.Left, rule.Right}] = rule.ID
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("bpe: loaded tokenizer from %q (%d vocab entries, %d merges)",
		dir, len(t.vocab), len(t.merges))
	return t, nil
}

// validate cross-checks the loaded vocabulary against the merge table.
func (t *Tokenizer) validate() error {
	for b := 0; b < NumByteTokens; b++ {
		if len(t.vocab[b]) == 0 {
			return errors.Wrapf(ErrCorruptState, "vocab entry for base token %d is missing or empty", b)
		}
	}
	seen := make(map[int]Pair, len(t.merges))
	for p, id := range t.merges {
		if prev, dup := seen[id]; dup {
			return errors.Wrapf(ErrCorruptState, "merge id %d assigned to both (%d,%d) and (%d,%d)",
				id, prev.Left, prev.Right, p.Left, p.Right)
		}
		seen[id] = p
		left, right, merged := t.vocab[p.Left], t.vocab[p.Right], t.vocab[id]
		if len(left) == 0 || len(right) == 0 {
			return errors.Wrapf(ErrCorruptState, "merge (%d,%d) -> %d references unknown tokens",
				p.Left, p.Right, id)
		}
		if !bytes.Equal(merged, concatBytes(left, right)) {
			return errors.Wrapf(ErrCorruptState, "vocab entry for merge id %d is not the concatenation of (%d,%d)",
				id, p.Left, p.Right)
		}
	}
	return nil
}

// writeBlob writes data to path via a uniquely named temporary file and an
// atomic rename, removing the temporary file on any failure.
func writeBlob(path string, data []byte) error {
	tmpPath := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write temporary blob %q", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		if removeErr := os.Remove(tmpPath); removeErr != nil {
			klog.Warningf("failed removing temporary blob %q: %v", tmpPath, removeErr)
		}
		return errors.Wrapf(err, "failed to move blob %q to %q", tmpPath, path)
	}
	return nil
}

// execOnFileLock opens the lockPath file (or creates it if it doesn't yet
// exist), locks it, and executes fn. If lockPath is already locked it polls
// until it acquires the lock. The lock is released on all exit paths,
// including a panic inside fn.
func execOnFileLock(lockPath string, fn func() error) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(20+rand.Intn(80)))
	}
	defer func() {
		if unlockErr := fileLock.Unlock(); unlockErr != nil && err == nil {
			err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
		}
	}()
	return fn()
}
