package scanner

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	"github.com/yleoer/tunebook/pkg/catalog"
	"github.com/yleoer/tunebook/pkg/parser"
	"github.com/yleoer/tunebook/pkg/tunebook"
	"github.com/yleoer/tunebook/pkg/util"
)

// CollectionScanner 负责读取曲谱文件并构建 Collection 对象
type CollectionScanner struct {
	segmenter       *tunebook.Segmenter
	headerParser    *parser.HeaderParser
	fallbackCharset string
	logger          *log.Logger
}

// NewCollectionScanner 创建一个新的 CollectionScanner 实例
func NewCollectionScanner(seg *tunebook.Segmenter, hp *parser.HeaderParser, fallbackCharset string, logger *log.Logger) *CollectionScanner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &CollectionScanner{
		segmenter:       seg,
		headerParser:    hp,
		fallbackCharset: fallbackCharset,
		logger:          logger,
	}
}

// ScanFile 读取、拆分并解析单个曲谱文件
func (s *CollectionScanner) ScanFile(path string) (*catalog.Collection, error) {
	text, raw, err := util.ReadTextFileContent(path, s.fallbackCharset)
	if err != nil {
		return nil, fmt.Errorf("failed to read tune book %s: %w", path, err)
	}
	book := s.segmenter.SegmentDocument(text)
	coll := &catalog.Collection{
		Path:       path,
		Hash:       HashBytes(raw),
		Directives: book.Directives,
		Tunes:      make([]*catalog.Entry, 0, book.Len()),
		ScannedAt:  time.Now(),
	}
	for i, tune := range book.Tunes {
		h := s.headerParser.Parse(tune.Text)
		coll.Tunes = append(coll.Tunes, &catalog.Entry{
			Index:       i,
			Number:      h.Number,
			Title:       h.Title,
			Titles:      h.Titles,
			Composer:    h.Composer,
			Origin:      h.Origin,
			Rhythm:      h.Rhythm,
			Meter:       h.Meter,
			Key:         h.Key,
			StartOffset: tune.StartOffset,
			Text:        tune.Text,
			Hash:        HashBytes([]byte(tune.Text)),
		})
	}
	s.logger.Printf("  Scanned %s: %d tunes (estimated %d)", path, book.Len(), tunebook.EstimateTuneCount(text))
	return coll, nil
}

// ScanDirectory 递归扫描目录下的全部 .abc 文件，按路径排序返回
func (s *CollectionScanner) ScanDirectory(rootPath string) ([]*catalog.Collection, error) {
	s.logger.Printf("  Searching for tune books in %s...", rootPath)
	var collections []*catalog.Collection
	err := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !util.IsTuneBookFile(path) {
			return nil
		}
		coll, err := s.ScanFile(path)
		if err != nil {
			s.logger.Printf("Error scanning tune book %s: %v", path, err)
			return nil // continue walking
		}
		collections = append(collections, coll)
		return nil
	})
	sort.Slice(collections, func(i, j int) bool {
		return collections[i].Path < collections[j].Path
	})
	return collections, err
}

// HashBytes 返回内容的 BLAKE3 十六进制哈希
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
