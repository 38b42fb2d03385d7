package app

import (
	"path/filepath"

	"github.com/John-Robertt/mediaport/internal/classify"
	"github.com/John-Robertt/mediaport/internal/domain"
)

type groupKey struct {
	dir  string
	stem string
}

type keyMembers struct {
	primaries  []string
	companions []string
}

// GroupByRelationship 按 (所在目录, 去扩展名文件名) 把文件划分为 FileGroup。
//
// 每个 key 内的处理规则：
// - 没有 primary：每个 companion 各自成为单文件组（不会被静默丢弃）
// - 一个 primary：一个组，companion 为该 key 下全部 companion
// - 多个 primary：每个 primary 各成一组，且每组都挂上该 key 下的全部 companion
//   （companion 不拆分也不去重，会在每个组中各落盘一次）
//
// 两类都不命中的文件不参与分组。
// 输出顺序稳定：key 按首次出现顺序，key 内按输入顺序。
func GroupByRelationship(files []domain.MediaFile, cls classify.Classifier) []domain.FileGroup {
	index := make(map[groupKey]int, len(files))
	members := make([]keyMembers, 0, len(files))

	for _, f := range files {
		role := cls.Classify(f.AbsPath)
		if role == classify.RoleNone {
			continue
		}

		k := groupKey{dir: filepath.Dir(f.AbsPath), stem: f.Base}
		idx, ok := index[k]
		if !ok {
			idx = len(members)
			index[k] = idx
			members = append(members, keyMembers{})
		}

		switch role {
		case classify.RolePrimary:
			members[idx].primaries = append(members[idx].primaries, f.AbsPath)
		case classify.RoleCompanion:
			members[idx].companions = append(members[idx].companions, f.AbsPath)
		}
	}

	groups := make([]domain.FileGroup, 0, len(members))
	for _, m := range members {
		if len(m.primaries) == 0 {
			for _, c := range m.companions {
				groups = append(groups, domain.NewFileGroup(c))
			}
			continue
		}
		for _, p := range m.primaries {
			groups = append(groups, domain.NewFileGroup(p, m.companions...))
		}
	}
	return groups
}

// Singletons 在不维护文件关系时使用：每个文件自成一组，没有 companion。
func Singletons(files []domain.MediaFile) []domain.FileGroup {
	groups := make([]domain.FileGroup, 0, len(files))
	for _, f := range files {
		groups = append(groups, domain.NewFileGroup(f.AbsPath))
	}
	return groups
}
