package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"cert-renewer/internal/config"
	"cert-renewer/internal/core"
	"cert-renewer/internal/daemon"
	"cert-renewer/internal/logging"
)

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "执行一次续期周期",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(flags.ConfigPath)
		},
	}
}

func createDaemonCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "前台运行调度器（调试用）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(flags.ConfigPath, "")
		},
	}
}

func createStartCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "后台启动守护进程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleStart(flags.ConfigPath)
		},
	}
}

// addStopFlags 停止策略参数，默认等待当前周期结束
func addStopFlags(cmd *cobra.Command, opts *daemon.StopOptions) {
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "等待进程退出的最长时间，0 表示一直等待")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "超时后强制终止进程（需同时指定 --timeout）")
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	var opts daemon.StopOptions
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "停止守护进程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.NewDaemon(flags.ConfigPath).Stop(opts); err != nil {
				return fmt.Errorf("停止失败: %w", err)
			}
			return nil
		},
	}
	addStopFlags(cmd, &opts)
	return cmd
}

func createRestartCommand(flags *GlobalFlags) *cobra.Command {
	var opts daemon.StopOptions
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "重启守护进程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.NewDaemon(flags.ConfigPath).Restart(opts); err != nil {
				return fmt.Errorf("重启失败: %w", err)
			}
			return nil
		},
	}
	addStopFlags(cmd, &opts)
	return cmd
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看运行状态",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.NewDaemon(flags.ConfigPath).Status()
		},
	}
}

// renewer 加载配置后组装好的续期组件
type renewer struct {
	config    *config.Config
	scheduler *core.Scheduler
	closeLog  func()
}

// setup 加载配置并创建调度器，logFile 在配置未指定日志文件时使用
func setup(ctx context.Context, configPath, logFile string) (*renewer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if cfg.Log.File == "" {
		cfg.Log.File = logFile
	}
	closeLog := logging.Setup(cfg.Log)

	deps, err := core.NewFactory(cfg).Build(ctx)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("初始化失败: %w", err)
	}

	manager, err := core.NewManager(cfg, deps)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("初始化失败: %w", err)
	}

	return &renewer{
		config:    cfg,
		scheduler: core.NewScheduler(manager, cfg.ScheduleInterval(), cfg.RunOnStart, deps.Metrics),
		closeLog:  closeLog,
	}, nil
}

func runOnce(configPath string) error {
	ctx, cancel := daemon.SignalContext(context.Background())
	defer cancel()

	r, err := setup(ctx, configPath, "")
	if err != nil {
		return err
	}
	defer r.closeLog()

	result := r.scheduler.RunOnce(ctx)
	switch result.Status {
	case core.CycleIdle, core.CycleRenewed:
		return nil
	}
	return fmt.Errorf("续期失败 (%s): %v", result.Status, result.Err)
}

func runScheduler(configPath, logFile string) error {
	ctx, cancel := daemon.SignalContext(context.Background())
	defer cancel()

	r, err := setup(ctx, configPath, logFile)
	if err != nil {
		return err
	}
	defer r.closeLog()

	log.Printf("守护进程已启动，PID: %d，域名: %v", os.Getpid(), r.config.Domains)
	return r.scheduler.Run(ctx)
}

func handleStart(configPath string) error {
	d := daemon.NewDaemon(configPath)

	// 非后台进程时启动子进程后直接返回
	if err := d.Start(); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	if !daemon.IsDaemonized() {
		return nil
	}

	if err := d.WritePid(); err != nil {
		return fmt.Errorf("写入PID失败: %w", err)
	}
	defer d.RemovePid()

	return runScheduler(configPath, d.LogFile)
}
