package normalizer

import (
	"io"
	"log"
	"strings"
)

// Normalizer 定义曲谱文本归一化接口
type Normalizer interface {
	Normalize(raw string) string // 去注释、统一换行并去掉首尾空白
}

// Options 控制 ABC 归一化行为
type Options struct {
	StripComments bool // 删除只含注释的行（% 开头但不是 %% 指令）
}

// DefaultOptions 返回默认归一化选项
func DefaultOptions() Options {
	return Options{StripComments: true}
}

// abcNormalizer 是 Normalizer 的 ABC 实现
type abcNormalizer struct {
	opts   Options
	logger *log.Logger
}

// NewABCNormalizer 创建 ABC 文本归一化器
func NewABCNormalizer(opts Options, logger *log.Logger) Normalizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &abcNormalizer{opts: opts, logger: logger}
}

// Normalize 统一换行符，按需删除注释行，并去掉整篇文本首尾空白
func (n *abcNormalizer) Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if n.opts.StripComments {
		text = stripCommentLines(text)
	}
	return strings.TrimSpace(text)
}

// stripCommentLines 删除注释行；空行保留，因为空行是曲目的结束标记
func stripCommentLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isCommentLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "%") && !strings.HasPrefix(trimmed, "%%")
}

// Identity 原样返回输入，用于已归一化的文本
type Identity struct{}

func (Identity) Normalize(raw string) string { return raw }
