package util

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// ErrUnsupportedCharset 表示配置了无法识别的回退编码
var ErrUnsupportedCharset = errors.New("unsupported charset")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTextFileContent 读取曲谱文件并解码为 UTF-8 字符串
// 非 UTF-8 内容按 fallbackCharset 解码（ABC 老文件多为 Latin-1）。
func ReadTextFileContent(path, fallbackCharset string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	text, err := DecodeText(data, fallbackCharset)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return text, data, nil
}

// DecodeText 去掉 BOM；合法 UTF-8 原样返回，否则用回退编码解码
func DecodeText(data []byte, fallbackCharset string) (string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, err := charsetEncoding(fallbackCharset)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("failed to decode as %s: %w", fallbackCharset, err)
	}
	return string(decoded), nil
}

func charsetEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "windows1252", "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCharset, name)
	}
}

// SanitizeFileName 清理文件名，移除或替换不适用于文件路径的字符
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")

	invalidChars := []string{":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalidChars {
		name = strings.ReplaceAll(name, char, "")
	}
	// 合并连续空白
	return strings.Join(strings.Fields(name), " ")
}

// IsDirectory 检查路径是否为目录
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsTuneBookFile 判断文件是否为 ABC 曲谱文件
func IsTuneBookFile(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".abc", ".abc2":
		return true
	default:
		return false
	}
}
