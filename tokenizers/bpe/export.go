package bpe

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// HuggingFace tokenizer.json export.
//
// The tokenizer.json vocabulary is JSON text, so raw bytes cannot appear in
// it directly. Byte-level BPE models use the GPT-2 convention of mapping
// every byte 0..255 to a printable stand-in rune; the maps below replay that
// convention.
var (
	byteToUnicode map[byte]rune
	unicodeToByte map[rune]byte
)

func init() {
	byteToUnicode = make(map[byte]rune, 256)
	unicodeToByte = make(map[rune]byte, 256)
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[byte(b)] = rune(b)
			unicodeToByte[rune(b)] = byte(b)
		} else {
			byteToUnicode[byte(b)] = rune(256 + n)
			unicodeToByte[rune(256+n)] = byte(b)
			n++
		}
	}
}

// encodeTokenBytes renders a token's raw bytes as a tokenizer.json vocabulary
// key using the byte-to-unicode stand-in mapping.
func encodeTokenBytes(raw []byte) string {
	var sb strings.Builder
	sb.Grow(len(raw) * 2)
	for _, b := range raw {
		sb.WriteRune(byteToUnicode[b])
	}
	return sb.String()
}

// ExportHF serializes the learned model as a HuggingFace tokenizer.json
// document, loadable by the HuggingFace Tokenizers library and compatible
// readers.
//
// The special tokens are emitted as added_tokens; because they share ids 0..3
// with the corresponding byte tokens, those four byte tokens are shadowed in
// the exported vocabulary exactly as they are in memory.
func (t *Tokenizer) ExportHF() ([]byte, error) {
	vocab := make(map[string]int, len(t.vocab))
	idToToken := make(map[int]string, len(t.vocab))
	for id, raw := range t.vocab {
		if id >= 0 && id < NumSpecialTokens {
			continue // emitted as added_tokens below
		}
		token := encodeTokenBytes(raw)
		vocab[token] = id
		idToToken[id] = token
	}

	rules := make([]mergeRule, 0, len(t.merges))
	for p, id := range t.merges {
		rules = append(rules, mergeRule{Left: p.Left, Right: p.Right, ID: id})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	merges := make([]string, 0, len(rules))
	for _, rule := range rules {
		left := idToToken[rule.Left]
		if left == "" {
			left = encodeTokenBytes(t.vocab[rule.Left])
		}
		right := idToToken[rule.Right]
		if right == "" {
			right = encodeTokenBytes(t.vocab[rule.Right])
		}
		merges = append(merges, left+" "+right)
	}

	addedTokens := []map[string]any{}
	for _, s := range []struct {
		id      int
		content string
	}{
		{PadID, "<PAD>"}, {UnkID, "<UNK>"}, {BosID, "<BOS>"}, {EosID, "<EOS>"},
	} {
		addedTokens = append(addedTokens, map[string]any{
			"id": s.id, "content": s.content,
			"single_word": false, "lstrip": false, "rstrip": false,
			"normalized": false, "special": true,
		})
	}

	doc := map[string]any{
		"version":      "1.0",
		"added_tokens": addedTokens,
		"normalizer":   nil,
		"pre_tokenizer": map[string]any{
			"type":             "ByteLevel",
			"add_prefix_space": false,
			"trim_offsets":     false,
			"use_regex":        false,
		},
		"post_processor": nil,
		"decoder":        map[string]any{"type": "ByteLevel"},
		"model": map[string]any{
			"type":   "BPE",
			"vocab":  vocab,
			"merges": merges,
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize tokenizer.json")
	}
	return data, nil
}
