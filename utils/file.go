package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// shp的附属文件
var shpSidecars = []string{".shp", ".shx", ".dbf", ".prj", ".cpg", ".qix", ".sbn", ".sbx"}

var (
	ErrNotDir = errors.New("not a directory")
)

// 在parentPath下创建以uuid命名的子目录
func GetUniqSubDir(parentPath string) (path string, err error) {
	path = filepath.Join(parentPath, "."+uuid.NewString())
	err = os.Mkdir(path, os.ModePerm)
	return
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 可在测试中替换以模拟rename失败
var rename = os.Rename

// shp在磁盘上可能存在的全部附属文件路径
func ShpSidecars(shp string) (paths []string) {
	prefix := strings.TrimSuffix(shp, filepath.Ext(shp))
	paths = make([]string, len(shpSidecars))
	for i, ext := range shpSidecars {
		paths[i] = prefix + ext
	}
	return
}

// 将srcDir下的全部常规文件移动到dstDir（同一文件系统内rename），并移除stale中列出的旧文件。
// 被覆盖或移除的旧文件先备份到srcDir下的临时目录，任一rename失败则撤销已移动的文件并恢复备份。
func ReplaceFiles(srcDir, dstDir string, stale []string) (moved []string, err error) {
	fi, err := os.Stat(dstDir)
	if err != nil {
		return
	}
	if !fi.IsDir() {
		err = ErrNotDir
		return
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	backupDir, err := GetUniqSubDir(srcDir)
	if err != nil {
		return
	}
	defer os.RemoveAll(backupDir)

	type backup struct{ orig, saved string }
	var (
		backups []backup
		seen    = make(map[string]bool)
	)
	olds := append([]string{}, stale...)
	for _, n := range names {
		olds = append(olds, filepath.Join(dstDir, n))
	}
	defer func() {
		if err == nil {
			return
		}
		for _, m := range moved {
			os.Remove(m)
		}
		moved = nil
		for i := len(backups) - 1; i >= 0; i-- {
			rename(backups[i].saved, backups[i].orig)
		}
	}()
	for i, old := range olds {
		if seen[old] {
			continue
		}
		seen[old] = true
		if _, e := os.Lstat(old); e != nil {
			if os.IsNotExist(e) {
				continue
			}
			err = e
			return
		}
		saved := filepath.Join(backupDir, strconv.Itoa(i)+"_"+filepath.Base(old))
		if err = rename(old, saved); err != nil {
			return
		}
		backups = append(backups, backup{old, saved})
	}
	for _, n := range names {
		dst := filepath.Join(dstDir, n)
		if err = rename(filepath.Join(srcDir, n), dst); err != nil {
			return
		}
		moved = append(moved, dst)
	}
	return
}
