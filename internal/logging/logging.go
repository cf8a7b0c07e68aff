// Package logging 设置标准库 log 的输出位置与滚动策略
package logging

import (
	"io"
	"log"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"cert-renewer/internal/config"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// NewWriter 返回按大小滚动的日志文件，未配置文件时返回 nil
func NewWriter(cfg config.LogConfig) io.WriteCloser {
	if cfg.File == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   cfg.File,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
}

// Setup 将 log 输出切换到配置的文件，返回的函数在退出前调用
func Setup(cfg config.LogConfig) func() {
	log.SetFlags(log.LstdFlags)

	w := NewWriter(cfg)
	if w == nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(w)
	return func() {
		log.SetOutput(os.Stderr)
		w.Close()
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
