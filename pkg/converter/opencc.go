package converter

import (
	"fmt"
	"io"
	"log"
	"unicode"

	"github.com/liuzl/gocc"
)

// hanTitleConverter 用 OpenCC t2s 把繁体曲名转为简体，便于统一搜索
type hanTitleConverter struct {
	cc     *gocc.OpenCC
	logger *log.Logger
}

// NewOpenCCConverter 加载 t2s 词典
func NewOpenCCConverter(logger *log.Logger) (TitleConverter, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cc, err := gocc.New("t2s")
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenCC t2s dictionary: %w", err)
	}
	logger.Println("Title converter (OpenCC t2s) ready.")
	return &hanTitleConverter{cc: cc, logger: logger}, nil
}

// ConvertTitle 纯拉丁文本不经过 OpenCC
func (c *hanTitleConverter) ConvertTitle(title string) string {
	title = collapseSpace(title)
	if c.cc == nil || !hasHan(title) {
		return title
	}
	out, err := c.cc.Convert(title)
	if err != nil {
		c.logger.Printf("Warning: Title %q kept as is, OpenCC conversion failed: %v", title, err)
		return title
	}
	return out
}

func hasHan(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
