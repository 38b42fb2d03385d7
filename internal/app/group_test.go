package app

import (
	"path/filepath"
	"testing"

	"github.com/John-Robertt/mediaport/internal/classify"
	"github.com/John-Robertt/mediaport/internal/domain"
)

var testClassifier = classify.New([]string{".mp4", ".mov", ".dng", ".jpg"}, []string{".srt", ".lrf", ".xmp"})

func mf(dir, name string) domain.MediaFile {
	ext := filepath.Ext(name)
	return domain.MediaFile{
		AbsPath: filepath.Join(dir, name),
		RelPath: name,
		Base:    name[:len(name)-len(ext)],
		Ext:     ext,
	}
}

func TestGroupByRelationship_PrimaryWithCompanion(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "card", "DCIM")
	groups := GroupByRelationship([]domain.MediaFile{mf(dir, "A.MP4"), mf(dir, "A.SRT")}, testClassifier)

	if len(groups) != 1 {
		t.Fatalf("期望 1 个组，实际 %d：%+v", len(groups), groups)
	}
	g := groups[0]
	if g.Primary != filepath.Join(dir, "A.MP4") {
		t.Fatalf("primary 错误：%q", g.Primary)
	}
	if len(g.Companions) != 1 || g.Companions[0] != filepath.Join(dir, "A.SRT") {
		t.Fatalf("companions 错误：%v", g.Companions)
	}
	if len(g.Files) != 2 || g.Files[0] != g.Primary {
		t.Fatalf("Files 必须 primary 在前：%v", g.Files)
	}
}

func TestGroupByRelationship_OrphanCompanionBecomesSingleton(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "card")
	groups := GroupByRelationship([]domain.MediaFile{mf(dir, "B.SRT")}, testClassifier)

	if len(groups) != 1 {
		t.Fatalf("期望 1 个组，实际 %d", len(groups))
	}
	if groups[0].Primary != filepath.Join(dir, "B.SRT") || len(groups[0].Companions) != 0 {
		t.Fatalf("孤立 companion 应自成一组且无 companion：%+v", groups[0])
	}
}

func TestGroupByRelationship_OrphanCompanionsEachSingleton(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "card")
	groups := GroupByRelationship([]domain.MediaFile{mf(dir, "B.SRT"), mf(dir, "B.LRF")}, testClassifier)
	if len(groups) != 2 {
		t.Fatalf("每个孤立 companion 都应独立成组，实际 %d", len(groups))
	}
	for _, g := range groups {
		if len(g.Files) != 1 {
			t.Fatalf("singleton 组只应包含自身：%+v", g)
		}
	}
}

// 多个 primary 共享同一 key 时，每个组都挂上全部 companion（fan-out）。
// 这是既有的导入结果，测试锁定它，防止被“顺手修正”。
func TestGroupByRelationship_MultiplePrimariesFanOutCompanions(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "card")
	groups := GroupByRelationship([]domain.MediaFile{mf(dir, "C.MOV"), mf(dir, "C.MP4"), mf(dir, "C.SRT")}, testClassifier)

	if len(groups) != 2 {
		t.Fatalf("期望 2 个组，实际 %d：%+v", len(groups), groups)
	}
	srt := filepath.Join(dir, "C.SRT")
	for _, g := range groups {
		if len(g.Companions) != 1 || g.Companions[0] != srt {
			t.Fatalf("每个组都必须包含 C.SRT：%+v", g)
		}
	}
	if groups[0].Primary == groups[1].Primary {
		t.Fatalf("两个组的 primary 必须不同：%+v", groups)
	}
}

func TestGroupByRelationship_KeyIncludesDirectory(t *testing.T) {
	a := filepath.Join(string(filepath.Separator), "card", "100")
	b := filepath.Join(string(filepath.Separator), "card", "101")
	groups := GroupByRelationship([]domain.MediaFile{mf(a, "X.MP4"), mf(b, "X.SRT")}, testClassifier)

	if len(groups) != 2 {
		t.Fatalf("不同目录的同名文件不应合并，实际 %d 组", len(groups))
	}
	if len(groups[0].Companions) != 0 {
		t.Fatalf("X.MP4 不应拿到其他目录的 companion：%+v", groups[0])
	}
}

func TestGroupByRelationship_ExtensionCaseInsensitive(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "card")
	groups := GroupByRelationship([]domain.MediaFile{mf(dir, "D.mp4"), mf(dir, "D.Srt"), mf(dir, "D.txt")}, testClassifier)
	if len(groups) != 1 || len(groups[0].Companions) != 1 {
		t.Fatalf("扩展名大小写不应影响分组：%+v", groups)
	}
}

func TestSingletons(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "card")
	groups := Singletons([]domain.MediaFile{mf(dir, "A.MP4"), mf(dir, "A.SRT")})
	if len(groups) != 2 {
		t.Fatalf("期望 2 个组，实际 %d", len(groups))
	}
	for _, g := range groups {
		if len(g.Companions) != 0 {
			t.Fatalf("关闭关系维护时不应有 companion：%+v", g)
		}
	}
}
