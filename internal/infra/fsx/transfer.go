package fsx

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash"

	"github.com/John-Robertt/mediaport/internal/domain"
)

// 测试可替换，用于模拟写坏的副本。
var copyData = io.Copy

// VerifyError 表示复制后目标内容与源文件校验和不一致。
type VerifyError struct {
	Src     string
	Dst     string
	SrcHash uint64
	DstHash uint64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("校验失败：%q(%016x) -> %q(%016x)", e.Src, e.SrcHash, e.Dst, e.DstHash)
}

func IsVerify(err error) bool {
	var e *VerifyError
	return errors.As(err, &e)
}

// Transfer 把 src 放到 dir/name，返回最终路径。
//
//   - copy：写同目录临时文件后 rename 到位；保留源文件的修改时间与权限位，源文件不动。
//   - move：直接 rename；仅当失败原因是跨盘（EXDEV）时退化为 copy + 删除源文件。
//
// verify=true 时，复制出的内容需与源文件 xxhash64 一致，否则不落盘并返回 VerifyError。
// src 存在时才会创建缺失的 dir；name 的冲突处理由调用方负责。
func Transfer(src, dir, name string, mode domain.TransferMode, verify bool) (string, error) {
	// 源文件不可用时不创建目标目录，避免在库里留下空目录。
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("读取源文件失败：%w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建目标目录失败：%w", err)
	}
	dst := filepath.Join(dir, name)
	if err := checkTarget(dst); err != nil {
		return "", err
	}

	switch mode {
	case domain.ModeCopy:
		if err := copyFile(src, dir, name, verify); err != nil {
			return "", err
		}
	case domain.ModeMove:
		err := Rename(src, dst)
		if err == nil {
			return dst, nil
		}
		if !IsCrossDevice(err) {
			return "", err
		}
		if err := copyFile(src, dir, name, verify); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("已复制到 %q，但删除源文件失败：%w", dst, err)
		}
	default:
		return "", fmt.Errorf("未知传输模式：%q", mode)
	}
	return dst, nil
}

// checkTarget 拒绝覆盖目录等非普通文件。
func checkTarget(dst string) error {
	fi, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
	}
	if !fi.Mode().IsRegular() {
		return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return nil
}

func copyFile(src, dir, name string, verify bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	var r io.Reader = in
	var srcSum hash.Hash64
	if verify {
		srcSum = xxhash.New()
		r = io.TeeReader(in, srcSum)
	}
	if _, err := copyData(tmp, r); err != nil {
		return err
	}
	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, fi.ModTime(), fi.ModTime()); err != nil {
		return err
	}

	dst := filepath.Join(dir, name)
	if verify {
		got, err := hashFile(tmpName)
		if err != nil {
			return err
		}
		if want := srcSum.Sum64(); got != want {
			return &VerifyError{Src: src, Dst: dst, SrcHash: want, DstHash: got}
		}
	}

	if err := Rename(tmpName, dst); err != nil {
		return err
	}
	_ = syncDirBestEffort(dir)
	return nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
