package database

import (
	"errors"

	"github.com/yleoer/tunebook/pkg/catalog"
)

// ErrNotFound 表示索引中没有对应的曲谱文件
var ErrNotFound = errors.New("collection not found")

// TuneMatch 是标题搜索的一条结果
type TuneMatch struct {
	Path        string
	Index       int
	Number      int
	Title       string
	Key         string
	StartOffset int
}

// TuneStore 定义曲谱索引存储接口
type TuneStore interface {
	SaveCollection(coll *catalog.Collection) error       // 保存文件及其全部曲目（覆盖旧记录）
	IsCollectionCurrent(path, hash string) (bool, error) // 检查文件是否已按当前内容入库
	ListTunes(path string) ([]*catalog.Entry, error)     // 按顺序列出文件中的曲目
	SearchTitles(query string) ([]TuneMatch, error)      // 按标题模糊搜索
	RemoveCollection(path string) error                  // 删除文件及其曲目
	ListCollectionPaths() ([]string, error)              // 列出已入库的文件路径
	Close() error                                        // 关闭数据库连接
}
