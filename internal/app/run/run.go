package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/mediaport/internal/app"
	"github.com/John-Robertt/mediaport/internal/capture"
	"github.com/John-Robertt/mediaport/internal/config"
	"github.com/John-Robertt/mediaport/internal/domain"
	"github.com/John-Robertt/mediaport/internal/infra/exiftool"
	"github.com/John-Robertt/mediaport/internal/infra/exifx"
	"github.com/John-Robertt/mediaport/internal/scan"
)

// Env 是 run 依赖的外部协作者；零值字段使用默认实现。
type Env struct {
	Resolver *capture.Resolver
	Log      *zap.Logger
}

// DefaultResolver 按配置组装日期回退链：goexif → exiftool 子进程 → mtime。
func DefaultResolver(eff config.EffectiveConfig, log *zap.Logger) *capture.Resolver {
	return capture.NewResolver(
		exifx.Reader{},
		exiftool.Tool{Path: eff.ExiftoolPath, Timeout: eff.ExiftoolTimeout},
		log,
	)
}

// Execute 执行一次导入（或 dry-run），并返回对外稳定的 RunReport。
// 单个组失败只影响该组；配置错误应在调用前由 config.LoadEffective 拦截。
func Execute(ctx context.Context, eff config.EffectiveConfig, env Env) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, env, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, env Env, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	log := env.Log
	if log == nil {
		log = zap.NewNop()
	}
	resolver := env.Resolver
	if resolver == nil {
		resolver = DefaultResolver(eff, log)
	}

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		SessionID:   uuid.NewString(),
		Profile:     eff.Profile,
		Source:      eff.Source,
		Destination: eff.Destination,
		DryRun:      eff.DryRun,
		StartedAt:   started,
		Items:       make([]domain.GroupResult, 0, 128),
	}
	log = log.With(zap.String("session", rr.SessionID))

	scanStarted := time.Now()
	files, err := scan.Scan(eff.Source, scan.Options{
		Filter:          eff.Filter(),
		ExcludeFolders:  eff.ExcludeFolders,
		ExcludePatterns: eff.ExcludePatterns,
		IgnoreFile:      eff.IgnoreFile,
		Log:             log,
	})
	if err != nil {
		log.Error("扫描失败", zap.String("source", eff.Source), zap.Error(err))
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeScanFailed, fmt.Sprintf("扫描失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	scanDur := time.Since(scanStarted)

	byPath := make(map[string]domain.MediaFile, len(files))
	for _, f := range files {
		byPath[f.AbsPath] = f
	}

	groupStarted := time.Now()
	var groups []domain.FileGroup
	if eff.MaintainFileRelationships {
		groups = app.GroupByRelationship(files, eff.Classifier())
	} else {
		groups = app.Singletons(files)
	}
	groupDur := time.Since(groupStarted)

	// 被多个组共享的 companion（多个 primary 同名时）。
	owners := make(map[string]int)
	var totalBytes int64
	for _, g := range groups {
		for _, p := range g.Files {
			owners[p]++
			totalBytes += byPath[p].Size
		}
	}

	im := NewImporter(log, eff.Verify, eff.DryRun)
	shared := make(map[string]struct{})
	for p, n := range owners {
		if n > 1 {
			shared[p] = struct{}{}
		}
	}
	if eff.TransferMode == domain.ModeMove && !eff.DryRun {
		im.copyOnly = shared
	}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files": len(files),
		}, scanDur)
		obs.OnPhaseDone("group", map[string]any{
			"groups": len(groups),
			"shared": len(shared),
		}, groupDur)
		obs.OnPhaseDone("exec", map[string]any{
			"workers":      workers,
			"total_groups": len(groups),
			"total_bytes":  totalBytes,
		}, 0)
	}

	tgt := Target{
		DestRoot: eff.Destination,
		Template: eff.FilenameFormat,
		Camera:   eff.CameraLabel,
		Policy:   eff.OnCollision,
		Mode:     eff.TransferMode,
	}

	type execResult struct {
		res  domain.GroupResult
		done []domain.TransferResult
		dur  time.Duration
	}

	jobs := make(chan domain.FileGroup)
	results := make(chan execResult, len(groups))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range jobs {
				oneStarted := time.Now()
				res, done := execGroup(ctx, im, resolver, eff, tgt, g, byPath, log)
				results <- execResult{res: res, done: done, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, g := range groups {
			jobs <- g
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	transferredShared := make(map[string]int)
	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		for _, tr := range it.done {
			if _, ok := shared[tr.SourcePath]; ok {
				transferredShared[tr.SourcePath]++
			}
		}
		if obs != nil {
			obs.OnGroupDone(done, len(groups), it.res, it.dur)
		}
	}

	if im.copyOnly != nil {
		removeShared(shared, owners, transferredShared, log)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	log.Info("导入结束",
		zap.Int("groups", rr.Summary.Groups),
		zap.Int("failed", rr.Summary.GroupsFailed),
		zap.Int("files", rr.Summary.FilesTransferred),
		zap.Int64("bytes", rr.Summary.Bytes),
		zap.Bool("dry_run", rr.DryRun),
	)
	return rr
}

// execGroup 解析组的拍摄时间并落盘，返回报告条目与成功落盘的文件。
func execGroup(ctx context.Context, im *Importer, resolver *capture.Resolver, eff config.EffectiveConfig, tgt Target, g domain.FileGroup, byPath map[string]domain.MediaFile, log *zap.Logger) (domain.GroupResult, []domain.TransferResult) {
	ts := resolver.Resolve(ctx, g.Primary, eff.UseExifDate)
	done, err := im.ProcessGroup(ctx, g, ts.Time, tgt)

	res := domain.GroupResult{
		Primary:         relOr(eff.Source, g.Primary, byPath),
		Timestamp:       ts.Time.UTC(),
		TimestampSource: ts.Source,
		Status:          domain.StatusProcessed,
		Files:           make([]domain.FileResult, 0, len(g.Files)),
	}
	if eff.DryRun {
		res.Status = domain.StatusPlanned
	}

	dst := make(map[string]string, len(done))
	for _, tr := range done {
		dst[tr.SourcePath] = tr.TargetPath
	}

	failed := make(map[string]struct{})
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeTransferFailed
		// error_code 取组内第一个失败文件的。
		for i, fe := range FileErrors(err) {
			if i == 0 {
				res.ErrorCode = fe.Code
			}
			failed[fe.Src] = struct{}{}
		}
		res.ErrorMsg = err.Error()
		log.Error("组处理失败",
			zap.String("primary", g.Primary),
			zap.String("error_code", res.ErrorCode),
			zap.Error(err),
		)
	} else {
		log.Info("组处理完成",
			zap.String("primary", g.Primary),
			zap.Int("files", len(done)),
			zap.String("timestamp_source", string(ts.Source)),
		)
	}

	for _, src := range g.Files {
		fr := domain.FileResult{
			Src:       relOr(eff.Source, src, byPath),
			Companion: g.IsCompanion(src),
			Size:      byPath[src].Size,
			Status:    domain.FileStatusPending,
		}
		if d, ok := dst[src]; ok {
			fr.Dst = relTo(eff.Destination, d)
			fr.Status = domain.FileStatusTransferred
			if eff.DryRun {
				fr.Status = domain.FileStatusPlanned
			}
		} else if _, ok := failed[src]; ok {
			fr.Status = domain.FileStatusFailed
		}
		res.Files = append(res.Files, fr)
	}
	return res, done
}

// removeShared 在 move 模式下删除共享 companion 的源文件；只有所有所属组都成功落盘时才删除。
func removeShared(shared map[string]struct{}, owners, transferred map[string]int, log *zap.Logger) {
	for p := range shared {
		if transferred[p] != owners[p] {
			log.Warn("共享 companion 未在所有组中落盘，保留源文件", zap.String("path", p))
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Warn("删除共享 companion 源文件失败", zap.String("path", p), zap.Error(err))
		}
	}
}

func syntheticFailed(code, msg string) domain.GroupResult {
	return domain.GroupResult{
		Primary:   "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     []domain.FileResult{},
	}
}

func relOr(root, abs string, byPath map[string]domain.MediaFile) string {
	if f, ok := byPath[abs]; ok && f.RelPath != "" {
		return filepath.ToSlash(f.RelPath)
	}
	return relTo(root, abs)
}

// relTo 尽量输出相对路径；失败则输出原始路径（至少可追溯）。
func relTo(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}
