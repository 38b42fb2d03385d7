package scan

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
	"go.uber.org/zap"

	"github.com/John-Robertt/mediaport/internal/classify"
	"github.com/John-Robertt/mediaport/internal/domain"
)

// SidecarPrefix 是 macOS 在非 HFS 卷上生成的 AppleDouble 影子文件前缀。
const SidecarPrefix = "._"

// Options 描述一次扫描的过滤规则。
type Options struct {
	Filter classify.Filter

	// ExcludeFolders 按目录名精确匹配（不含路径）；命中即整棵子树剪枝。
	ExcludeFolders []string
	// ExcludePatterns 是 doublestar glob，匹配相对 root 的 '/' 分隔路径。
	ExcludePatterns []string
	// IgnoreFile 是 root 下 gitignore 语法的忽略文件名；为空或不存在则不启用。
	IgnoreFile string

	Log *zap.Logger
}

// Scan 递归扫描 root，返回满足过滤规则的文件（按 RelPath 排序，每个文件恰好出现一次）。
//
// 规则：
// - ExcludeFolders 命中的目录不下探（root 本身除外）
// - "._" 开头的文件先于扩展名过滤被无条件跳过
// - 子目录读取失败只记录 warning，继续扫描兄弟目录；只有 root 不可读才返回错误
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func Scan(root string, opt Options) ([]domain.MediaFile, error) {
	root = filepath.Clean(root)
	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}

	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &fs.PathError{Op: "scan", Path: root, Err: errors.New("不是目录")}
	}

	folders := make(map[string]struct{}, len(opt.ExcludeFolders))
	for _, f := range opt.ExcludeFolders {
		if f = strings.TrimSpace(f); f != "" {
			folders[f] = struct{}{}
		}
	}
	ignore := loadIgnoreFile(root, opt.IgnoreFile)

	files := make([]domain.MediaFile, 0, 256)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// 单个子树不可读（权限/瞬时 I/O）：记录后跳过，不中断整体扫描。
			log.Warn("跳过不可读路径", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relSlash := filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if _, ok := folders[name]; ok {
				return filepath.SkipDir
			}
			if matchAny(opt.ExcludePatterns, relSlash) || ignored(ignore, relSlash, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, SidecarPrefix) {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !opt.Filter.Matches(name) {
			return nil
		}
		if matchAny(opt.ExcludePatterns, relSlash) || ignored(ignore, relSlash, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// 文件在遍历期间消失或不可 stat：同样按“可继续”处理。
			log.Warn("跳过无法 stat 的文件", zap.String("path", path), zap.Error(err))
			return nil
		}

		ext := filepath.Ext(name)
		files = append(files, domain.MediaFile{
			AbsPath: path,
			RelPath: rel,
			Base:    strings.TrimSuffix(name, ext),
			Ext:     ext,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// ValidatePatterns 在扫描前检查 glob 语法，返回第一个非法 pattern。
func ValidatePatterns(patterns []string) (string, bool) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return p, false
		}
	}
	return "", true
}

func matchAny(patterns []string, relSlash string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, relSlash); err == nil && ok {
			return true
		}
	}
	return false
}

func ignored(gi gitignore.GitIgnore, relSlash string, isDir bool) bool {
	if gi == nil {
		return false
	}
	m := gi.Relative(relSlash, isDir)
	return m != nil && m.Ignore()
}

// loadIgnoreFile 读取 root 下的忽略文件；不存在或读取失败时返回 nil（不启用）。
func loadIgnoreFile(root, name string) gitignore.GitIgnore {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(root, name))
	if err != nil {
		return nil
	}
	defer f.Close()
	return gitignore.New(f, root, nil)
}
