package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/John-Robertt/mediaport/internal/domain"
)

func writeSrc(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o640); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	return string(b)
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

func TestTransfer_CopyKeepsSourceAndMetadata(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "card/DJI_0019.MP4", "video")
	mt := time.Date(2025, 7, 6, 14, 12, 54, 0, time.UTC)
	if err := os.Chtimes(src, mt, mt); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	dir := filepath.Join(root, "dst", "2025-07-06")
	got, err := Transfer(src, dir, "a.MP4", domain.ModeCopy, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got != filepath.Join(dir, "a.MP4") {
		t.Fatalf("dst=%q", got)
	}
	if readFile(t, got) != "video" || readFile(t, src) != "video" {
		t.Fatalf("内容不一致")
	}

	fi, err := os.Stat(got)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !fi.ModTime().Equal(mt) {
		t.Fatalf("mtime 未保留：%v", fi.ModTime())
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm() != 0o640 {
		t.Fatalf("权限未保留：%v", fi.Mode().Perm())
	}
	assertNoTemp(t, dir, "a.MP4")
}

func TestTransfer_CopyReplacesExistingFile(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "src/a.jpg", "new")
	old := writeSrc(t, root, "dst/a.jpg", "old")

	got, err := Transfer(src, filepath.Dir(old), "a.jpg", domain.ModeCopy, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if readFile(t, got) != "new" {
		t.Fatalf("期望被覆盖")
	}
}

func TestTransfer_TargetIsDirectory(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "src/a.jpg", "x")
	dir := filepath.Join(root, "dst")
	if err := os.MkdirAll(filepath.Join(dir, "a.jpg"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	for _, mode := range []domain.TransferMode{domain.ModeCopy, domain.ModeMove} {
		_, err := Transfer(src, dir, "a.jpg", mode, false)
		if !IsPathTypeConflict(err) {
			t.Fatalf("%s: 期望 PathTypeConflictError，实际：%T %v", mode, err, err)
		}
	}
	if !exists(src) {
		t.Fatalf("源文件不应受影响")
	}
}

func TestTransfer_MoveSameDevice(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "src/a.jpg", "x")

	got, err := Transfer(src, filepath.Join(root, "dst"), "b.jpg", domain.ModeMove, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if exists(src) {
		t.Fatalf("move 后源文件应消失")
	}
	if readFile(t, got) != "x" {
		t.Fatalf("内容不一致")
	}
}

func TestTransfer_MoveOtherRenameErrorPropagates(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "src/a.jpg", "x")

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		if oldpath == src {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: os.ErrPermission}
		}
		return os.Rename(oldpath, newpath)
	}
	defer func() { renameFunc = old }()

	dir := filepath.Join(root, "dst")
	_, err := Transfer(src, dir, "a.jpg", domain.ModeMove, false)
	if err == nil || IsCrossDevice(err) {
		t.Fatalf("期望非跨盘错误，实际：%v", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望保留原始错误：%v", err)
	}
	if !exists(src) || exists(filepath.Join(dir, "a.jpg")) {
		t.Fatalf("不应退化为 copy")
	}
}

func TestTransfer_VerifyMismatchLeavesNothing(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "src/a.jpg", "payload")

	old := copyData
	copyData = func(dst io.Writer, src io.Reader) (int64, error) {
		n, err := io.Copy(dst, src)
		if err != nil {
			return n, err
		}
		m, err := dst.Write([]byte("!"))
		return n + int64(m), err
	}
	defer func() { copyData = old }()

	dir := filepath.Join(root, "dst")
	_, err := Transfer(src, dir, "a.jpg", domain.ModeCopy, true)
	if !IsVerify(err) {
		t.Fatalf("期望 VerifyError，实际：%T %v", err, err)
	}
	if exists(filepath.Join(dir, "a.jpg")) {
		t.Fatalf("校验失败不应写出最终文件")
	}
	assertNoTemp(t, dir, "a.jpg")

	// 关闭校验时同样的损坏不会被发现。
	if _, err := Transfer(src, dir, "a.jpg", domain.ModeCopy, false); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
}

func TestTransfer_UnknownMode(t *testing.T) {
	root := t.TempDir()
	src := writeSrc(t, root, "src/a.jpg", "x")
	if _, err := Transfer(src, filepath.Join(root, "dst"), "a.jpg", "link", false); err == nil {
		t.Fatalf("期望错误")
	}
}

func TestTransfer_MissingSourceCreatesNoDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "lib", "0001-01-01")

	for _, mode := range []domain.TransferMode{domain.ModeCopy, domain.ModeMove} {
		_, err := Transfer(filepath.Join(root, "card", "gone.MP4"), dir, "x.MP4", mode, false)
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s: 期望 ErrNotExist，实际：%v", mode, err)
		}
		if exists(dir) {
			t.Fatalf("%s: 源文件缺失时不应创建目标目录", mode)
		}
	}
}
