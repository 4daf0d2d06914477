// Package archive 把拆分后的曲子打包成 tar.xz，每首曲子一个 .abc 文件
package archive

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/yleoer/tunebook/pkg/catalog"
	"github.com/yleoer/tunebook/pkg/util"
)

// ManifestName 是描述全部曲目的清单文件名
const ManifestName = "manifest.json"

// ManifestEntry 描述一首导出的曲子
type ManifestEntry struct {
	Index       int    `json:"index"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	StartOffset int    `json:"start_offset"`
	File        string `json:"file"`
	Hash        string `json:"hash,omitempty"`
}

// FileName 返回曲子在归档中的文件名：三位序号加曲名
func FileName(e *catalog.Entry) string {
	return fmt.Sprintf("%03d - %s.abc", e.Index+1, util.SanitizeFileName(e.DisplayTitle()))
}

// FileContent 返回写盘的曲谱文本，末尾恰好一个换行
func FileContent(e *catalog.Entry) []byte {
	return []byte(strings.TrimRight(e.Text, "\n") + "\n")
}

// Export 把 coll 的全部曲子写入 path 处的 tar.xz；失败时删除不完整的文件
func Export(coll *catalog.Collection, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	xzWriter, err := xz.NewWriter(file)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tarWriter := tar.NewWriter(xzWriter)

	manifest := make([]ManifestEntry, 0, len(coll.Tunes))
	names := make(map[string]bool, len(coll.Tunes))
	for _, e := range coll.Tunes {
		name := FileName(e)
		// Read 按文件名取内容，重名会丢曲子
		if names[name] {
			return fmt.Errorf("duplicate archive member %q", name)
		}
		names[name] = true
		if err := writeToTar(tarWriter, name, FileContent(e)); err != nil {
			return fmt.Errorf("failed to write tune %d: %w", e.Index, err)
		}
		manifest = append(manifest, ManifestEntry{
			Index:       e.Index,
			Number:      e.Number,
			Title:       e.Title,
			StartOffset: e.StartOffset,
			File:        name,
			Hash:        e.Hash,
		})
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := writeToTar(tarWriter, ManifestName, manifestData); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := xzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return nil
}

// Read 读取 Export 生成的归档，返回清单和各曲谱文件内容
func Read(path string) ([]ManifestEntry, map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	tarReader := tar.NewReader(xzReader)

	var manifest []ManifestEntry
	files := make(map[string]string)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		data, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		if header.Name == ManifestName {
			if err := json.Unmarshal(data, &manifest); err != nil {
				return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}
		files[header.Name] = string(data)
	}
	return manifest, files, nil
}

func writeToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
