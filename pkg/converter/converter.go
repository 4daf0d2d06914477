// Package converter 在入库前规范化曲名
package converter

import "strings"

// TitleConverter 在入库前规范化曲名
type TitleConverter interface {
	ConvertTitle(title string) string
}

// Passthrough 只压缩多余空白，CONVERT_TITLES 关闭时使用
type Passthrough struct{}

func (Passthrough) ConvertTitle(title string) string { return collapseSpace(title) }

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
