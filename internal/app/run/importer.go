package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/John-Robertt/mediaport/internal/app/planner"
	"github.com/John-Robertt/mediaport/internal/domain"
	"github.com/John-Robertt/mediaport/internal/infra/fsx"
)

// Target 是一个组落盘所需的参数（来自 profile）。
type Target struct {
	DestRoot string
	Template string
	Camera   string
	Policy   domain.CollisionPolicy
	Mode     domain.TransferMode
}

// FileError 记录组内一个失败的文件及其 error_code。
type FileError struct {
	Src  string
	Code string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s：%v", e.Src, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Importer 把一个组按同一份 TargetPlan 落到目标目录。
//
// 同一目标目录上的“冲突探测 + 传输”在目录锁内完成，并发 worker 不会领到同一个名字。
type Importer struct {
	Verify bool
	DryRun bool
	Log    *zap.Logger

	// copyOnly 中的文件即使在 move 模式下也只复制：它们被多个组共享，源文件由调用方在全部组完成后清理。
	copyOnly map[string]struct{}

	locks dirLocks

	mu       sync.Mutex
	reserved planner.Reservations
}

func NewImporter(log *zap.Logger, verify, dryRun bool) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		Verify:   verify,
		DryRun:   dryRun,
		Log:      log,
		reserved: planner.Reservations{},
	}
}

// ProcessGroup 用组的唯一时间戳计算一次 TargetPlan，然后按 primary、companion 的顺序逐个落盘。
//
// 单个文件失败不影响组内其余文件：返回所有成功的结果，以及用 multierr 合并的各个 *FileError。
// 已落盘的文件不回滚。ctx 结束后剩余文件不再处理。
// DryRun 时只做命名与冲突规划，不创建目录也不传输。
func (im *Importer) ProcessGroup(ctx context.Context, g domain.FileGroup, ts time.Time, tgt Target) ([]domain.TransferResult, error) {
	plan := planner.Plan(ts, tgt.Camera, tgt.DestRoot, tgt.Template)

	var errs error
	out := make([]domain.TransferResult, 0, len(g.Files))
	for _, src := range g.Files {
		if err := ctx.Err(); err != nil {
			return out, multierr.Append(errs, &FileError{Src: src, Code: domain.ErrCodeTransferFailed, Err: err})
		}
		dst, err := im.place(src, plan, tgt)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, domain.TransferResult{
			SourcePath:  src,
			TargetPath:  dst,
			IsCompanion: g.IsCompanion(src),
		})
	}
	return out, errs
}

// FileErrors 拆出 ProcessGroup 返回的各个 *FileError（保持文件顺序）。
func FileErrors(err error) []*FileError {
	var out []*FileError
	for _, e := range multierr.Errors(err) {
		var fe *FileError
		if errors.As(e, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

func (im *Importer) place(src string, plan domain.TargetPlan, tgt Target) (string, error) {
	unlock := im.locks.lock(plan.Dir)
	defer unlock()

	want := plan.NameFor(src)

	if im.DryRun {
		im.mu.Lock()
		name, err := im.reserved.Resolve(plan.Dir, want, tgt.Policy)
		im.mu.Unlock()
		if err != nil {
			return "", &FileError{Src: src, Code: domain.ErrCodeCollision, Err: err}
		}
		return filepath.Join(plan.Dir, name), nil
	}

	name, err := planner.ResolveCollision(plan.Dir, want, tgt.Policy)
	if err != nil {
		return "", &FileError{Src: src, Code: domain.ErrCodeCollision, Err: err}
	}

	mode := tgt.Mode
	if _, shared := im.copyOnly[src]; shared && mode == domain.ModeMove {
		mode = domain.ModeCopy
	}
	dst, err := fsx.Transfer(src, plan.Dir, name, mode, im.Verify)
	if err != nil {
		return "", &FileError{Src: src, Code: transferCode(err), Err: err}
	}
	im.Log.Debug("文件已落盘", zap.String("src", src), zap.String("dst", dst), zap.String("mode", string(mode)))
	return dst, nil
}

func transferCode(err error) string {
	switch {
	case fsx.IsPathTypeConflict(err):
		return domain.ErrCodeTargetConflict
	case fsx.IsVerify(err):
		return domain.ErrCodeVerifyFailed
	default:
		return domain.ErrCodeTransferFailed
	}
}

// dirLocks 为每个目标目录提供一把互斥锁。
type dirLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *dirLocks) lock(dir string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[dir]
	if !ok {
		m = &sync.Mutex{}
		l.m[dir] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
