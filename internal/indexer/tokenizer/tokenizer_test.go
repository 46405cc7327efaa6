package tokenizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

// dictSegmenter is a forward maximum-match segmenter over a fixed word list,
// falling back to single characters.
type dictSegmenter map[string]struct{}

func newDictSegmenter(words ...string) dictSegmenter {
	d := make(dictSegmenter, len(words))
	for _, w := range words {
		d[w] = struct{}{}
	}
	return d
}

func (d dictSegmenter) Segment(text string) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); {
		matched := 1
		for j := len(runes); j > i+1; j-- {
			if _, ok := d[string(runes[i:j])]; ok {
				matched = j - i
				break
			}
		}
		out = append(out, string(runes[i:i+matched]))
		i += matched
	}
	return out
}

func TestTokenize(t *testing.T) {
	tok := New(nil)
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", []string{}},
		{"simple lowercase", "hello world", []string{"hello", "world"}},
		{"case folded", "Hello WORLD", []string{"hello", "world"}},
		{"with punctuation", "hello, world!", []string{"hello", "world"}},
		{"with numbers", "item123 test", []string{"item123", "test"}},
		{"apostrophe splits", "don't", []string{"don"}},
		{"stop words removed", "the cat and the hat", []string{"cat", "hat"}},
		{"single letters dropped", "x y zz", []string{"zz"}},
		{"only symbols", "!@#$%^", []string{}},
		{"fullwidth normalised", "ＧＯ ｌａｎｇ", []string{"go", "lang"}},
		{"accented letters kept", "Café résumé", []string{"café", "résumé"}},
		{"cjk without dictionary", "你好世界", []string{"你", "好", "世", "界"}},
		{"cjk stop word dropped", "我的书", []string{"我", "书"}},
		{"mixed scripts split", "Go语言", []string{"go", "语", "言"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Terms(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeWithSegmenter(t *testing.T) {
	tok := New(newDictSegmenter("你好", "世界", "搜索引擎"))
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"dictionary words", "你好世界", []string{"你好", "世界"}},
		{"fallback to characters", "你好朋友", []string{"你好", "朋", "友"}},
		{"mixed with latin", "hello你好", []string{"hello", "你好"}},
		{"punctuation separates runs", "你好，世界。", []string{"你好", "世界"}},
		{"long word", "全文搜索引擎", []string{"全", "文", "搜索引擎"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Terms(tt.input))
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := New(nil).Tokenize("the quick brown fox")
	assert.Equal(t, []Token{
		{Term: "quick", Position: 0},
		{Term: "brown", Position: 1},
		{Term: "fox", Position: 2},
	}, tokens)
}

func TestTokenizeDeterministic(t *testing.T) {
	tok := New(newDictSegmenter("笔记", "博客"))
	text := "My 笔记 and 博客 notes, notes, NOTES 2024"
	first := tok.Terms(text)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, tok.Terms(text))
	}
}

func TestFrequencies(t *testing.T) {
	freqs := New(nil).Frequencies("Go go GO gopher")
	assert.Equal(t, map[string]int{"go": 3, "gopher": 1}, freqs)
}

func TestTermsAreNeverEmpty(t *testing.T) {
	inputs := []string{
		"  \t\n",
		"a-b-c",
		"<p>hello</p>",
		strings.Repeat("。", 10),
		string([]byte{0xff, 0xfe}),
	}
	tok := New(nil)
	for _, in := range inputs {
		for _, term := range tok.Terms(in) {
			assert.NotEmpty(t, term)
			assert.True(t, utf8.ValidString(term))
		}
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat("Personal notes about distributed search engines and 搜索引擎 design. ", 50)
	tok := New(newDictSegmenter("搜索引擎"))
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tok.Tokenize(text)
	}
}
