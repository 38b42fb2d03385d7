package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/John-Robertt/mediaport/internal/app/run"
	"github.com/John-Robertt/mediaport/internal/config"
	"github.com/John-Robertt/mediaport/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出：阶段信息逐行打印，执行阶段用字节进度条。
//
// 所有输出写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约。
// 失败组在进度条上方逐行打印；成功组只推进进度条。
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time

	bar  *progressbar.ProgressBar
	ok   int
	fail int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := eff.TransferMode
	modeHint := ""
	if eff.DryRun {
		modeHint = " (dry-run：不建目录/不拷贝/不移动)"
	}

	fmt.Fprintf(p.w, "[%s] mediaport import (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	if eff.Profile != "" {
		fmt.Fprintf(p.w, "  profile: %s\n", eff.Profile)
	}
	fmt.Fprintf(p.w, "  source: %s\n", eff.Source)
	fmt.Fprintf(p.w, "  destination: %s\n", eff.Destination)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  on_collision: %s\n", eff.OnCollision)
	fmt.Fprintf(p.w, "  filename_format: %s\n", eff.FilenameFormat)
	if eff.CameraLabel != "" {
		fmt.Fprintf(p.w, "  camera_label: %s\n", eff.CameraLabel)
	}
	fmt.Fprintf(p.w, "  exif_date: %s\n", onOff(eff.UseExifDate))
	fmt.Fprintf(p.w, "  relationships: %s\n", onOff(eff.MaintainFileRelationships))
	fmt.Fprintf(p.w, "  verify: %s\n", onOff(eff.Verify))
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  exclude_folders: %s\n", formatStringListJSON(eff.ExcludeFolders))
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "group":
		fmt.Fprintf(p.w, "分组: groups=%d shared=%d (%s)\n",
			intField(fields, "groups"), intField(fields, "shared"), formatShortDuration(dur),
		)
	case "exec":
		total := int64Field(fields, "total_bytes")
		fmt.Fprintf(p.w, "执行: workers=%d total_groups=%d total=%s\n\n",
			intField(fields, "workers"), intField(fields, "total_groups"), formatBytes(total),
		)
		// max 为 0 时 progressbar 的 Add 会报错：没有字节可传时不建进度条。
		if total > 0 && intField(fields, "total_groups") > 0 {
			p.bar = newBytesBar(p.w, total)
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnGroupDone(idx, total int, res domain.GroupResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var bytes int64
	for _, f := range res.Files {
		bytes += f.Size
	}

	switch res.Status {
	case domain.StatusFailed:
		p.fail++
		line := fmt.Sprintf("[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, res.Primary, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
		if p.bar != nil {
			_, _ = progressbar.Bprintf(p.bar, "%s", line)
		} else {
			fmt.Fprint(p.w, line)
		}
	default:
		p.ok++
		if p.bar == nil {
			fmt.Fprintf(p.w, "[%d/%d] %s %s files=%d (%s)\n",
				idx, total, res.Primary, statusLabel(res.Status), len(res.Files), formatShortDuration(dur),
			)
		}
	}

	if p.bar != nil {
		p.bar.Describe(fmt.Sprintf("导入 %d/%d", idx, total))
		if bytes > 0 {
			_ = p.bar.Add64(bytes)
		}
		if idx >= total {
			_ = p.bar.Finish()
		}
	}

	if idx >= total {
		fmt.Fprintf(p.w, "结束: ok=%d fail=%d elapsed=%s\n", p.ok, p.fail, formatElapsed(time.Since(p.startedAt)))
	}
}

func newBytesBar(w io.Writer, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("导入"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowTotalBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
}

func statusLabel(s string) string {
	switch s {
	case domain.StatusProcessed:
		return "OK"
	case domain.StatusPlanned:
		return "PLAN"
	case domain.StatusFailed:
		return "FAIL"
	default:
		return strings.ToUpper(s)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	return int(int64Field(fields, key))
}

func int64Field(fields map[string]any, key string) int64 {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	default:
		return 0
	}
}
