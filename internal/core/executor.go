package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Executor 命令执行器
type Executor struct{}

// NewExecutor 创建执行器
func NewExecutor() *Executor {
	return &Executor{}
}

// RunPostCommand 执行后置命令
func (e *Executor) RunPostCommand(ctx context.Context, command string, vars map[string]string) error {
	if command == "" {
		return nil
	}

	command = e.Expand(command, vars)

	log.Printf("执行后置命令: %s", command)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("执行命令失败: %w", err)
	}

	log.Printf("后置命令执行成功")
	return nil
}

// Expand 替换命令中的 ${NAME} 变量
func (e *Executor) Expand(command string, vars map[string]string) string {
	for key, value := range vars {
		command = strings.ReplaceAll(command, "${"+key+"}", value)
	}
	return command
}

// BuildVars 构建变量映射
// CERT_FILE 保留给旧脚本使用，与 FULLCHAIN_FILE 相同
func (e *Executor) BuildVars(domain, certDir, keyFile, fullchainFile string) map[string]string {
	return map[string]string{
		"DOMAIN":         domain,
		"CERT_DIR":       certDir,
		"CERT_FILE":      fullchainFile,
		"KEY_FILE":       keyFile,
		"FULLCHAIN_FILE": fullchainFile,
	}
}
