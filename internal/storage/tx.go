package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	stagingPrefix = ".staging-"
	backupSuffix  = ".bak"
	pendingMarker = ".pending"
)

// 私钥先于证书链替换，读取方以 fullchain.pem 判断是否需要续期
var certFiles = []string{PrivateKeyFile, FullchainFile}

// dirTx 一个证书目录的替换过程
// 准备阶段写入临时文件、硬链接备份原有文件并写入 .pending 标记，
// 标记存在期间目录内容以备份为准
type dirTx struct {
	dir     string
	staging string
}

func (tx *dirTx) marker() string {
	return filepath.Join(tx.dir, pendingMarker)
}

// prepare 准备目录的替换，返回时目标文件尚未改动
func (s *FileStorage) prepare(dir string, fullchain, privateKey []byte) (*dirTx, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}

	staging, err := os.MkdirTemp(s.baseDir, stagingPrefix)
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	tx := &dirTx{dir: dir, staging: staging}

	if err := writeSynced(filepath.Join(staging, FullchainFile), fullchain, 0644); err != nil {
		return tx, fmt.Errorf("写入证书链失败: %w", err)
	}
	if err := writeSynced(filepath.Join(staging, PrivateKeyFile), privateKey, 0600); err != nil {
		return tx, fmt.Errorf("写入私钥失败: %w", err)
	}

	for _, file := range certFiles {
		if err := backupFile(filepath.Join(dir, file)); err != nil {
			return tx, fmt.Errorf("备份 %s 失败: %w", file, err)
		}
	}

	if err := writeSynced(tx.marker(), nil, 0644); err != nil {
		return tx, fmt.Errorf("写入标记失败: %w", err)
	}
	return tx, nil
}

func (tx *dirTx) commit(rename func(oldpath, newpath string) error) error {
	for _, file := range certFiles {
		if err := rename(filepath.Join(tx.staging, file), filepath.Join(tx.dir, file)); err != nil {
			return fmt.Errorf("替换 %s 失败: %w", file, err)
		}
	}
	return nil
}

// rollback 用备份恢复原有文件，没有备份的文件说明原来不存在
func (tx *dirTx) rollback() {
	for _, file := range certFiles {
		path := filepath.Join(tx.dir, file)
		backup := path + backupSuffix

		if _, err := os.Stat(backup); err == nil {
			if err := os.Rename(backup, path); err != nil {
				log.Printf("ERROR 恢复文件 %s 失败: %v", path, err)
			}
			// 文件未被替换时备份与原文件是同一个 inode，rename 不会删除备份
			os.Remove(backup)
		} else {
			os.Remove(path)
		}
	}
	os.Remove(tx.marker())
}

// release 删除标记与备份，目标文件保持当前状态
func (tx *dirTx) release() {
	os.Remove(tx.marker())
	for _, file := range certFiles {
		os.Remove(filepath.Join(tx.dir, file) + backupSuffix)
	}
}

// backupFile 将已有文件硬链接到 .bak，文件不存在时不做任何事
func backupFile(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	backup := path + backupSuffix
	os.Remove(backup)
	return os.Link(path, backup)
}
