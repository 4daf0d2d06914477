package catalog

import "time"

// Collection 代表一个曲谱文件（tune book）及其中的全部曲目
type Collection struct {
	ID         string // 入库时分配的 UUID
	Path       string // 文件路径
	Hash       string // 文件内容的 BLAKE3 哈希
	Directives string // 文件级 %% 指令
	Tunes      []*Entry
	ScannedAt  time.Time
}

// Entry 代表一首曲子
type Entry struct {
	Index       int // 在文件中的顺序，从 0 开始
	Number      int // X: 编号
	Title       string
	Titles      []string
	Composer    string
	Origin      string
	Rhythm      string
	Meter       string
	Key         string
	StartOffset int
	Text        string
	Hash        string // 曲谱文本的 BLAKE3 哈希
}

// DisplayTitle 返回用于文件名和列表的标题
func (e *Entry) DisplayTitle() string {
	if e.Title != "" {
		return e.Title
	}
	return "Untitled"
}
