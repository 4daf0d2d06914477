package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/yleoer/tunebook/pkg/tunebook"
)

// ErrNoTarget 表示没有提供任何输出位置
var ErrNoTarget = errors.New("no render targets")

// TuneRenderer 把一首曲子交给具体的后端（SVG、MIDI 等）
type TuneRenderer interface {
	RenderTune(ctx context.Context, tune tunebook.Tune, target string) error
}

// Options 控制分发行为
type Options struct {
	StartingTune int // 从第几首曲子开始（从 0 开始）
}

// Dispatcher 按顺序把曲子分发到各个输出位置
type Dispatcher struct {
	segmenter *tunebook.Segmenter
	logger    *log.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(seg *tunebook.Segmenter, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{segmenter: seg, logger: logger}
}

// Render 拆分 raw，并把第 StartingTune+i 首曲子渲染到 targets[i]。
// 空字符串表示跳过该位置（仍然占用一个曲目下标）；
// 其余位置先清空旧输出，曲目不足时保持清空状态。
func (d *Dispatcher) Render(ctx context.Context, raw string, targets []string, opts Options, r TuneRenderer) error {
	if len(targets) == 0 {
		return ErrNoTarget
	}
	book := d.segmenter.SegmentDocument(raw)
	current := opts.StartingTune
	if current < 0 {
		current = 0
	}

	var errs []error
	for _, target := range targets {
		index := current
		current++
		if target == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := clearTarget(target); err != nil {
			errs = append(errs, err)
			continue
		}
		if index >= book.Len() {
			d.logger.Printf("  -> No tune %d for %s, target cleared", index, target)
			continue
		}
		d.logger.Printf("  Rendering tune %d to %s", index, target)
		if err := r.RenderTune(ctx, book.Tunes[index], target); err != nil {
			d.logger.Printf("  -> ERROR: Rendering tune %d failed: %v", index, err)
			errs = append(errs, fmt.Errorf("tune %d: %w", index, err))
		}
	}
	return errors.Join(errs...)
}

func clearTarget(target string) error {
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear %s: %w", target, err)
	}
	return nil
}
