// Package exiftool 通过外部 exiftool 子进程读取拍摄时间，用于进程内解析器读不了的容器（部分 RAW、视频）。
package exiftool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/John-Robertt/mediaport/internal/capture"
)

const (
	DefaultPath    = "exiftool"
	DefaultTimeout = 10 * time.Second
)

// Tool 是 exiftool 的调用配置；零值可用（PATH 中的 exiftool、默认超时）。
type Tool struct {
	Path    string
	Timeout time.Duration
}

// ExitError 记录子进程非零退出时的退出码与 stderr。
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("exiftool 退出码 %d", e.Code)
	}
	return fmt.Sprintf("exiftool 退出码 %d: %s", e.Code, msg)
}

// ErrNoValue 表示 exiftool 成功运行但该字段为空。
var ErrNoValue = errors.New("exiftool 未输出字段值")

// Query 以 "-s3 -<field>" 调用 exiftool，返回该字段的原始文本。
func (t Tool) Query(ctx context.Context, path, field string) (string, error) {
	bin := t.Path
	if bin == "" {
		bin = DefaultPath
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-s3", "-"+field, path)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("exiftool %q: %w", path, ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return "", &ExitError{Code: ee.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("exiftool %q: %w", path, err)
	}
	return ParseOutput(out)
}

// Read 实现 capture.Reader：只填充 OriginalCapture，任何失败都返回空值。
func (t Tool) Read(ctx context.Context, path string) capture.Metadata {
	v, err := t.Query(ctx, path, "DateTimeOriginal")
	if err != nil {
		return capture.Metadata{}
	}
	return capture.Metadata{OriginalCapture: v}
}

// ParseOutput 取 -s3 输出的第一行非空文本。
// 导出以便在没有 exiftool 的环境下测试。
func ParseOutput(out []byte) (string, error) {
	for _, line := range strings.Split(string(out), "\n") {
		if v := strings.TrimSpace(line); v != "" {
			return v, nil
		}
	}
	return "", ErrNoValue
}
