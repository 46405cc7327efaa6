package tokenizer

import (
	"fmt"

	"github.com/go-ego/gse"
)

// DictSegmenter segments CJK text with a gse dictionary. It runs in search
// mode, so long dictionary words also yield their shorter dictionary
// sub-words. Runs without a dictionary match come out as single characters.
type DictSegmenter struct {
	seg gse.Segmenter
}

// NewDictSegmenter loads the dictionary files at dictPath (comma separated),
// or the Chinese dictionary compiled into gse when dictPath is empty. gse
// logs through the standard log package, so its logging is switched off.
func NewDictSegmenter(dictPath string) (*DictSegmenter, error) {
	var (
		seg gse.Segmenter
		err error
	)
	seg.SkipLog = true
	if dictPath == "" {
		err = seg.LoadDictEmbed()
	} else {
		err = seg.LoadDict(dictPath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading segmenter dictionary %q: %w", dictPath, err)
	}
	return &DictSegmenter{seg: seg}, nil
}

// Segment implements Segmenter. HMM guessing is disabled so output depends
// only on the dictionary.
func (d *DictSegmenter) Segment(text string) []string {
	return d.seg.CutSearch(text, false)
}
