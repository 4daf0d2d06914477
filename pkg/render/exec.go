package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yleoer/tunebook/pkg/tunebook"
)

// Format 是外部后端的输出格式
type Format string

const (
	FormatSVG  Format = "svg"
	FormatMIDI Format = "midi"
)

// ExecRenderer 通过外部命令（abcm2ps / abc2midi）渲染单首曲子
type ExecRenderer struct {
	format   Format
	toolPath string
	timeout  time.Duration
	logger   *log.Logger
}

// NewExecRenderer 创建一个新的 ExecRenderer 实例
func NewExecRenderer(format Format, toolPath string, timeout time.Duration, logger *log.Logger) (*ExecRenderer, error) {
	switch format {
	case FormatSVG, FormatMIDI:
	default:
		return nil, fmt.Errorf("unsupported render format %q", format)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ExecRenderer{format: format, toolPath: toolPath, timeout: timeout, logger: logger}, nil
}

// RenderTune 把曲谱写入临时文件，再调用外部工具生成 target
func (r *ExecRenderer) RenderTune(ctx context.Context, tune tunebook.Tune, target string) error {
	tmp, err := os.CreateTemp("", "tune-*.abc")
	if err != nil {
		return fmt.Errorf("failed to create temp tune file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(tune.Text + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp tune file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp tune file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", target, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.toolPath, r.buildArgs(tmp.Name(), target)...)
	r.logger.Printf("  -> Executing %s %s", r.toolPath, strings.Join(cmd.Args[1:], " "))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// abcm2ps -g 会给 -O 的文件名加序号，所以 SVG 走标准输出再写入 target
	var out *os.File
	if r.format == FormatSVG {
		out, err = os.Create(target)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		cmd.Stdout = out
	}
	runErr := cmd.Run()
	if out != nil {
		if err := out.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to close %s: %w", target, err)
		}
	}
	if runErr != nil {
		if out != nil {
			os.Remove(target)
		}
		r.logger.Printf("  -> %s output:\n%s", filepath.Base(r.toolPath), stderr.String())
		return fmt.Errorf("%s failed: %w", filepath.Base(r.toolPath), runErr)
	}
	return nil
}

// buildArgs 构建外部工具的命令行参数
func (r *ExecRenderer) buildArgs(input, output string) []string {
	switch r.format {
	case FormatMIDI:
		return []string{input, "-o", output}
	default:
		return []string{"-g", "-O", "-", input}
	}
}
