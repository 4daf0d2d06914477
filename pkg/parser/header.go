package parser

import (
	"bufio"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/yleoer/tunebook/pkg/converter"
)

// Header 是曲谱表头中的信息字段，只保存原始字符串，不做音乐语义解析
type Header struct {
	Number      int      // X: 参考编号，缺失或非法时为 0
	Title       string   // 第一个 T:
	Titles      []string // 全部 T:，按出现顺序
	Composer    string   // C:
	Origin      string   // O:
	Rhythm      string   // R:
	Meter       string   // M:
	UnitLength  string   // L:
	Tempo       string   // Q:
	Key         string   // K:
	Transcriber string   // Z:
	Source      string   // S:
	Directives  []string // 表头中的 %% 指令（包含注入的文件级指令）
}

// fieldRegex 匹配 "T: Title" 形式的信息字段行
var fieldRegex = regexp.MustCompile(`^([A-Za-z]):\s*(.*)$`)

// HeaderParser 解析曲谱表头
type HeaderParser struct {
	converter converter.TitleConverter
	logger    *log.Logger
}

// NewHeaderParser 创建表头解析器。tc 为 nil 时曲名不做转换
func NewHeaderParser(tc converter.TitleConverter, logger *log.Logger) *HeaderParser {
	if tc == nil {
		tc = converter.Passthrough{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &HeaderParser{converter: tc, logger: logger}
}

// Parse 读取表头字段，直到第一个 K: 行（含）为止
func (p *HeaderParser) Parse(text string) *Header {
	h := &Header{}
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), len(text)+bufio.MaxScanTokenSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "%%") {
			h.Directives = append(h.Directives, line)
			continue
		}
		matches := fieldRegex.FindStringSubmatch(line)
		if len(matches) < 3 {
			continue
		}
		value := strings.TrimSpace(matches[2])
		switch matches[1] {
		case "X":
			num, err := strconv.Atoi(value)
			if err != nil {
				p.logger.Printf("Warning: Invalid reference number X:%s, using 0", value)
			}
			h.Number = num
		case "T":
			title := p.converter.ConvertTitle(value)
			h.Titles = append(h.Titles, title)
			if h.Title == "" {
				h.Title = title
			}
		case "C":
			h.Composer = value
		case "O":
			h.Origin = value
		case "R":
			h.Rhythm = value
		case "M":
			h.Meter = value
		case "L":
			h.UnitLength = value
		case "Q":
			h.Tempo = value
		case "Z":
			h.Transcriber = value
		case "S":
			h.Source = value
		case "K":
			// K: 是表头的最后一个字段
			h.Key = value
			return h
		}
	}
	return h
}
