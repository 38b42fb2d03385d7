package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/mediaport/internal/domain"
)

func TestResolveCollision_FreeName(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveCollision(dir, "a.jpg", domain.CollisionRename)
	if err != nil || got != "a.jpg" {
		t.Fatalf("got %q err=%v", got, err)
	}

	// 目录尚不存在也视为空闲。
	got, err = ResolveCollision(filepath.Join(dir, "missing"), "a.jpg", domain.CollisionRename)
	if err != nil || got != "a.jpg" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestResolveCollision_RenameSkipsTaken(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.jpg"))
	for n := 1; n <= 3; n++ {
		write(t, filepath.Join(dir, fmt.Sprintf("a_%d.jpg", n)))
	}

	got, err := ResolveCollision(dir, "a.jpg", domain.CollisionRename)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got != "a_4.jpg" {
		t.Fatalf("期望 a_4.jpg，实际=%q", got)
	}
}

func TestResolveCollision_LastExtensionSegment(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.tar.gz"))
	write(t, filepath.Join(dir, "noext"))

	got, err := ResolveCollision(dir, "a.tar.gz", domain.CollisionRename)
	if err != nil || got != "a.tar_1.gz" {
		t.Fatalf("got %q err=%v", got, err)
	}
	got, err = ResolveCollision(dir, "noext", domain.CollisionRename)
	if err != nil || got != "noext_1" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestResolveCollision_DirectoryAndDanglingSymlinkCount(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.jpg"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "a_1.jpg")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	got, err := ResolveCollision(dir, "a.jpg", domain.CollisionRename)
	if err != nil || got != "a_2.jpg" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestResolveCollision_Replace(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.jpg"))
	got, err := ResolveCollision(dir, "a.jpg", domain.CollisionReplace)
	if err != nil || got != "a.jpg" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestResolveCollision_ProbeErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	write(t, blocker)

	// blocker 是普通文件：探测 blocker/a.jpg 得到 ENOTDIR 而不是“不存在”。
	if _, err := ResolveCollision(blocker, "a.jpg", domain.CollisionRename); err == nil {
		t.Fatalf("期望探测错误")
	}
}

func TestResolveCollision_UnknownPolicy(t *testing.T) {
	if _, err := ResolveCollision(t.TempDir(), "a.jpg", "skip"); err == nil {
		t.Fatalf("期望错误")
	}
}

func TestReservations_AvoidDuplicatePlans(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.srt"))

	res := Reservations{}
	first, err := res.Resolve(dir, "a.srt", domain.CollisionRename)
	if err != nil || first != "a_1.srt" {
		t.Fatalf("first=%q err=%v", first, err)
	}
	second, err := res.Resolve(dir, "a.srt", domain.CollisionRename)
	if err != nil || second != "a_2.srt" {
		t.Fatalf("second=%q err=%v", second, err)
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
