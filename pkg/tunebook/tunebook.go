// Package tunebook 把 ABC 曲谱文件拆分为可独立使用的曲子。
//
// 每首曲子从以 "X:" 开头的行开始，到第一个空行结束。第一个表头之前的
// 内容是前导区域，其中的 "%%" 指令作用于文件中的每一首曲子。
package tunebook

import (
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/yleoer/tunebook/pkg/normalizer"
)

const (
	headerMarker    = "X:"
	headerDelimiter = "\n" + headerMarker
	directiveMarker = "%%"
	tuneTerminator  = "\n\n"
)

// Tune 是拆分后的一首曲子
type Tune struct {
	Text        string // 完整曲谱文本，已包含文件级指令
	StartOffset int    // 在归一化文本中的起始字符位置（按 rune 计，不含注入的指令）
}

// Book 是一次拆分的结果，返回后不再修改
type Book struct {
	Tunes      []Tune
	Directives string // 文件级 %% 指令，每行以换行结尾
}

// Len 返回曲目数量
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Tunes)
}

// TuneText 按下标返回曲谱文本
func (b *Book) TuneText(i int) (string, bool) {
	if i < 0 || i >= b.Len() {
		return "", false
	}
	return b.Tunes[i].Text, true
}

// Segmenter 把归一化后的文本拆分为 Book；可并发使用
type Segmenter struct {
	normalizer normalizer.Normalizer
	logger     *log.Logger
}

// NewSegmenter 创建拆分器。n 为 nil 时不做归一化
func NewSegmenter(n normalizer.Normalizer, logger *log.Logger) *Segmenter {
	if n == nil {
		n = normalizer.Identity{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Segmenter{normalizer: n, logger: logger}
}

// SegmentDocument 先归一化原始文本再拆分
func (s *Segmenter) SegmentDocument(raw string) *Book {
	return s.Segment(s.normalizer.Normalize(raw))
}

// Segment 拆分已归一化的文本。对任意输入都不会出错
func (s *Segmenter) Segment(text string) *Book {
	fragments := splitFragments(text)

	book := &Book{Tunes: make([]Tune, 0, len(fragments))}
	offset := 0
	for _, frag := range fragments {
		book.Tunes = append(book.Tunes, Tune{Text: frag, StartOffset: offset})
		offset += utf8.RuneCountInString(frag)
	}

	// 只有一段时即使没有 X: 也当作一首曲子
	if len(book.Tunes) > 1 && !strings.HasPrefix(book.Tunes[0].Text, headerMarker) {
		book.Directives = collectDirectives(book.Tunes[0].Text)
		book.Tunes = book.Tunes[1:]
	}

	for i := range book.Tunes {
		body := book.Tunes[i].Text
		if end := strings.Index(body, tuneTerminator); end > 0 {
			body = body[:end]
		}
		book.Tunes[i].Text = book.Directives + body
	}

	if book.Directives != "" {
		s.logger.Printf("  -> Propagated %d bytes of file-wide directives into %d tunes", len(book.Directives), len(book.Tunes))
	}
	return book
}

// splitFragments 单次扫描定位每个 "\nX:"，返回各段文本。
// 第一段是首个表头之前的内容，其余各段都以 X: 开头
func splitFragments(text string) []string {
	var fragments []string
	start := 0
	for i := 0; i+len(headerDelimiter) <= len(text); i++ {
		if text[i] != '\n' || !strings.HasPrefix(text[i+1:], headerMarker) {
			continue
		}
		fragments = append(fragments, text[start:i])
		start = i + 1
	}
	return append(fragments, text[start:])
}

// collectDirectives 取出前导区域中所有以 %% 开头的行
func collectDirectives(region string) string {
	var b strings.Builder
	for _, line := range strings.Split(region, "\n") {
		if strings.HasPrefix(line, directiveMarker) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// EstimateTuneCount 快速估算曲目数：表头分隔符个数加一，至少为 1。
//
// 这是估算值。文件开头存在前导区域（指令或说明文字）时，结果会比
// Segment 得到的曲目数多一，这是预期行为。
func EstimateTuneCount(raw string) int {
	return strings.Count(raw, headerDelimiter) + 1
}
