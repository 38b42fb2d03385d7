package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/mediaport/internal/app/run"
	"github.com/John-Robertt/mediaport/internal/config"
	"github.com/John-Robertt/mediaport/internal/domain"
	"github.com/John-Robertt/mediaport/internal/infra/fsx"
	"github.com/John-Robertt/mediaport/internal/infra/logx"
	"github.com/John-Robertt/mediaport/internal/infra/mountwait"
)

const (
	reportDir  = ".mediaport"
	reportName = "last-import.json"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "import":
		if code := importCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func importCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printImportUsage()
			return 0
		}
	}

	ia, err := parseImportArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printImportUsage()
		return 2
	}

	progressW, interactive := pickProgressWriter()

	// 交互终端下进度条占用 stderr：未显式指定级别时只输出 warn 以上，避免日志把进度条打散。
	level := ia.LogLevel
	if !ia.LogLevelSet && interactive && ia.LogFile == "" {
		level = "warn"
	}
	log, closeLog, err := logx.New(level, ia.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		ConfigPath: ia.ConfigPath,
		Profile:    ia.Profile,
		Source:     ia.Source,
		Dest:       ia.Dest,
		DryRun:     ia.DryRun,
		DryRunSet:  ia.DryRunSet,
	})
	if err != nil {
		log.Error("加载配置失败", zap.String("code", config.Code(err)), zap.Error(err))
		emitReport(reportForConfigError(ia, err))
		return 1
	}

	if ia.Wait {
		if _, statErr := os.Stat(eff.Source); statErr != nil && interactive {
			fmt.Fprintf(progressW, "等待源目录出现：%s（Ctrl+C 取消）\n", eff.Source)
		}
		if err := mountwait.WaitForPath(ctx, eff.Source, log); err != nil {
			fmt.Fprintf(os.Stderr, "等待源目录失败：%v\n", err)
			return 1
		}
	}

	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, run.Env{Log: log}, obs)

	// 非 dry-run：报告写入 <destination>/.mediaport/last-import.json；dry-run 不落盘。
	if !eff.DryRun {
		if err := writeReportFile(eff.Destination, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", reportName, err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.GroupsFailed == 0 {
		return 0
	}
	return 1
}

type importArgs struct {
	ConfigPath string
	Profile    string
	Source     string
	Dest       string

	DryRun    bool
	DryRunSet bool
	Wait      bool

	LogLevel    string
	LogLevelSet bool
	LogFile     string
}

func parseImportArgs(args []string) (importArgs, error) {
	ia := importArgs{}

	// 带值参数：同时支持 "--name value" 与 "--name=value"。
	valued := map[string]*string{
		"--config":    &ia.ConfigPath,
		"--profile":   &ia.Profile,
		"--source":    &ia.Source,
		"--dest":      &ia.Dest,
		"--log-level": &ia.LogLevel,
		"--log-file":  &ia.LogFile,
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		name, val, hasVal := strings.Cut(a, "=")

		if dst, ok := valued[name]; ok {
			if !hasVal {
				if i+1 >= len(args) {
					return importArgs{}, fmt.Errorf("%s 需要一个值", name)
				}
				i++
				val = args[i]
			}
			if strings.TrimSpace(val) == "" {
				return importArgs{}, fmt.Errorf("%s 不能为空", name)
			}
			*dst = val
			if name == "--log-level" {
				ia.LogLevelSet = true
			}
			continue
		}

		switch {
		case a == "--dry-run":
			ia.DryRun = true
			ia.DryRunSet = true
		case name == "--dry-run" && hasVal:
			switch val {
			case "true":
				ia.DryRun = true
			case "false":
				ia.DryRun = false
			default:
				return importArgs{}, fmt.Errorf("--dry-run 只能是 true 或 false，实际是 %q", val)
			}
			ia.DryRunSet = true
		case a == "--wait":
			ia.Wait = true
		case strings.HasPrefix(a, "-"):
			return importArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			return importArgs{}, fmt.Errorf("多余的位置参数 %q", a)
		}
	}

	if ia.LogLevelSet {
		if _, err := logx.ParseLevel(ia.LogLevel); err != nil {
			return importArgs{}, err
		}
	}
	return ia, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mediaport import [--config F] [--profile P] [--source S] [--dest D] [--dry-run[=true|false]] [--wait]

命令：
  import    从存储卡导入媒体文件到目标库

使用 "mediaport import --help" 查看详细说明。
`)
}

func printImportUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mediaport import [--config F] [--profile P] [--source S] [--dest D] [--dry-run[=true|false]] [--wait]

参数：
  --config     配置文件路径（默认 ./mediaport.json）
  --profile    使用的 profile（默认 default_profile，或唯一的 profile）
  --source     源目录（覆盖 profile 的 source_path）
  --dest       目标根目录（覆盖 profile 的 destination_root）
  --dry-run    只规划不落盘；支持 --dry-run=false 覆盖配置中的 dry_run=true
  --wait       源目录不存在时等待其出现（例如插卡）
  --log-level  debug|info|warn|error（默认 info；交互终端下默认 warn）
  --log-file   日志以 JSON 追加写入该文件（默认写 stderr）
  -h, --help   显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	s := rr.Summary
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：groups=%d processed=%d failed=%d files=%d bytes=%d\n",
			s.Groups, s.GroupsProcessed, s.GroupsFailed, s.FilesTransferred, s.Bytes,
		)
		if s.GroupsFailed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Primary
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：groups=%d processed=%d failed=%d files=%d bytes=%d\n",
		s.Groups, s.GroupsProcessed, s.GroupsFailed, s.FilesTransferred, s.Bytes,
	)
}

func reportForConfigError(ia importArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Profile:     ia.Profile,
		Source:      ia.Source,
		Destination: ia.Dest,
		DryRun:      ia.DryRunSet && ia.DryRun,
		StartedAt:   now,
		FinishedAt:  now,
		Items: []domain.GroupResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
			Files:     []domain.FileResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(dest string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(dest, reportDir), reportName, b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Destination, reportDir, reportName))
	}
	fmt.Fprintf(w, "dest: %s\n", eff.Destination)
}
