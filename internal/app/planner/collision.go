package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/mediaport/internal/domain"
)

// ResolveCollision 返回 dir 下可用于写入的文件名。
//
//   - replace：原样返回 name，由传输覆盖已有文件。
//   - rename：name 未被占用则原样返回，否则依次尝试 base_1.ext、base_2.ext…
//
// 占用判断用 Lstat；除“不存在”以外的探测错误直接返回。
func ResolveCollision(dir, name string, policy domain.CollisionPolicy) (string, error) {
	return resolve(dir, name, policy, nil)
}

// Reservations 记录本次运行已分配但尚未落盘的目标路径（dry-run 不写盘，仍需避免重复分配）。
type Reservations map[string]struct{}

// Resolve 与 ResolveCollision 相同，但同时避开已预留的路径，并把结果记入预留。
func (r Reservations) Resolve(dir, name string, policy domain.CollisionPolicy) (string, error) {
	got, err := resolve(dir, name, policy, r)
	if err != nil {
		return "", err
	}
	r[filepath.Join(dir, got)] = struct{}{}
	return got, nil
}

func resolve(dir, name string, policy domain.CollisionPolicy, reserved Reservations) (string, error) {
	switch policy {
	case domain.CollisionReplace:
		return name, nil
	case domain.CollisionRename:
	default:
		return "", fmt.Errorf("未知冲突策略：%q", policy)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	cand := name
	for n := 1; ; n++ {
		taken, err := occupied(filepath.Join(dir, cand), reserved)
		if err != nil {
			return "", err
		}
		if !taken {
			return cand, nil
		}
		cand = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

func occupied(p string, reserved Reservations) (bool, error) {
	if _, ok := reserved[p]; ok {
		return true, nil
	}
	_, err := os.Lstat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("探测目标路径失败：%s：%w", p, err)
}
