package classify

import (
	"path/filepath"
	"sort"
	"strings"
)

// Role 是文件在关系分组中的角色。
type Role int

const (
	RoleNone Role = iota
	RolePrimary
	RoleCompanion
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleCompanion:
		return "companion"
	default:
		return "none"
	}
}

// Set 是规范化后的扩展名集合（小写、带前导 '.'）。
type Set map[string]struct{}

// NewSet 把配置里的扩展名（"MP4" / ".mp4" / " .Mp4 "）统一为 ".mp4"。
func NewSet(exts []string) Set {
	s := make(Set, len(exts))
	for _, e := range exts {
		if n := Normalize(e); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has 判断扩展名是否在集合内（大小写不敏感）。
func (s Set) Has(ext string) bool {
	_, ok := s[Normalize(ext)]
	return ok
}

// Normalize 返回小写 + 前导 '.' 的扩展名；空串保持为空。
func Normalize(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Classifier 根据 primary / companion 两个互斥集合对文件名分类。
// 纯函数：不访问文件系统。
type Classifier struct {
	Primary   Set
	Companion Set
}

func New(primary, companion []string) Classifier {
	return Classifier{
		Primary:   NewSet(primary),
		Companion: NewSet(companion),
	}
}

// Classify 先查 primary 再查 companion；都不命中返回 RoleNone。
func (c Classifier) Classify(name string) Role {
	ext := strings.ToLower(filepath.Ext(name))
	if c.Primary.Has(ext) {
		return RolePrimary
	}
	if c.Companion.Has(ext) {
		return RoleCompanion
	}
	return RoleNone
}

// Overlap 返回同时出现在两个集合中的扩展名（用于配置校验）。
func (c Classifier) Overlap() []string {
	var out []string
	for e := range c.Primary {
		if _, ok := c.Companion[e]; ok {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// Filter 是扫描阶段的 include/exclude 判定。
type Filter struct {
	Include Set
	Exclude Set
}

// Matches：扩展名在 include 且不在 exclude。
func (f Filter) Matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	return f.Include.Has(ext) && !f.Exclude.Has(ext)
}
