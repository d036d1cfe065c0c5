// Command bpetok trains, inspects and exercises byte-level BPE tokenizers
// from the command line.
//
// Usage:
//
//	bpetok train -corpus input.txt -model ./model -vocab-size 1024 [-export tokenizer.json]
//	bpetok encode -model ./model -text "hello world"
//	bpetok decode -model ./model -ids "260,97,98"
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bytelevel/go-bpe/tokenizers/bpe"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	statStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	var err error
	switch flag.Arg(0) {
	case "train":
		err = runTrain(flag.Args()[1:])
	case "encode":
		err = runEncode(flag.Args()[1:])
	case "decode":
		err = runDecode(flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "bpetok: %+v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: bpetok <train|encode|decode> [flags]\n")
	flag.PrintDefaults()
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	corpusPath := fs.String("corpus", "", "path to the training corpus file")
	modelDir := fs.String("model", "", "directory to save the trained tokenizer to")
	vocabSize := fs.Int("vocab-size", bpe.DefaultVocabSize, "target vocabulary size")
	exportPath := fs.String("export", "", "optional path to also export a HuggingFace tokenizer.json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corpusPath == "" || *modelDir == "" {
		return errors.Errorf("train requires -corpus and -model")
	}

	tok := bpe.New(*vocabSize)
	if err := tok.TrainFile(*corpusPath); err != nil {
		var insufficient *bpe.InsufficientDataError
		if !errors.As(err, &insufficient) {
			return err
		}
		fmt.Println(warnStyle.Render(fmt.Sprintf(
			"corpus too small: achieved vocab size %d of %d, saving anyway",
			insufficient.AchievedVocabSize, insufficient.RequestedVocabSize)))
	}
	if err := tok.Save(*modelDir); err != nil {
		return err
	}
	if *exportPath != "" {
		data, err := tok.ExportHF()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*exportPath, data, 0644); err != nil {
			return errors.Wrapf(err, "failed to write %q", *exportPath)
		}
	}

	fmt.Println(titleStyle.Render("training complete"))
	fmt.Println(statStyle.Render(fmt.Sprintf("  vocab size: %d", tok.VocabSize())))
	fmt.Println(statStyle.Render(fmt.Sprintf("  merges:     %d", tok.NumMerges())))
	fmt.Println(statStyle.Render(fmt.Sprintf("  model:      %s", *modelDir)))
	return nil
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	modelDir := fs.String("model", "", "directory holding a trained tokenizer")
	text := fs.String("text", "", "text to encode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelDir == "" {
		return errors.Errorf("encode requires -model")
	}

	tok, err := bpe.Load(*modelDir)
	if err != nil {
		return err
	}
	ids := tok.Encode(*text)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	fmt.Println(strings.Join(parts, ","))
	fmt.Println(statStyle.Render(fmt.Sprintf("  %d bytes -> %d tokens", len(*text), len(ids))))
	return nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	modelDir := fs.String("model", "", "directory holding a trained tokenizer")
	idsArg := fs.String("ids", "", "comma-separated token ids to decode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelDir == "" {
		return errors.Errorf("decode requires -model")
	}

	tok, err := bpe.Load(*modelDir)
	if err != nil {
		return err
	}
	var ids []int
	for _, part := range strings.Split(*idsArg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return errors.Wrapf(err, "invalid token id %q", part)
		}
		ids = append(ids, id)
	}
	fmt.Println(tok.Decode(ids))
	return nil
}
