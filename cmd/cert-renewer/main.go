package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags 全局参数
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "cert-renewer",
		Short: "ACME DNS-01 证书自动续期",
		Long: `按配置的间隔检查本地证书，剩余有效期不足时通过 DNS-01 验证向 ACME CA 申请新证书。

支持的DNS提供商: azure, aliyun, tencent, huawei, route53, memory

示例:
  cert-renewer run                           # 单次检查并续期
  cert-renewer --config prod.yaml daemon     # 前台运行调度器
  cert-renewer --config prod.yaml start      # 后台启动守护进程
  cert-renewer --config prod.yaml status     # 查看运行状态`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "config.yaml", "配置文件路径")

	root.AddCommand(
		createRunCommand(flags),
		createDaemonCommand(flags),
		createStartCommand(flags),
		createStopCommand(flags),
		createRestartCommand(flags),
		createStatusCommand(flags),
	)

	return root
}
