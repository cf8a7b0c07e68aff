package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// EnvDaemonized 标记进程是否已后台化
const EnvDaemonized = "CERT_RENEWER_DAEMONIZED"

var (
	ErrNotRunning   = errors.New("守护进程未运行")
	ErrStillRunning = errors.New("守护进程仍在运行")
)

// StopOptions 停止策略
// 守护进程收到 SIGTERM 后会先完成当前续期周期，默认一直等待
type StopOptions struct {
	Timeout time.Duration // 0 表示等到进程退出为止
	Force   bool          // 超时后发送 SIGKILL，可能中断正在写入的证书
}

// Daemon 守护进程管理器
type Daemon struct {
	PidFile    string
	LogFile    string
	ConfigPath string

	out              io.Writer
	pollInterval     time.Duration
	progressInterval time.Duration
}

// NewDaemon 创建守护进程管理器，pid 与日志文件放在配置文件所在目录
func NewDaemon(configPath string) *Daemon {
	dir := filepath.Dir(configPath)
	if dir == "." {
		dir, _ = os.Getwd()
	}

	return &Daemon{
		PidFile:          filepath.Join(dir, "cert-renewer.pid"),
		LogFile:          filepath.Join(dir, "cert-renewer.log"),
		ConfigPath:       configPath,
		out:              os.Stdout,
		pollInterval:     200 * time.Millisecond,
		progressInterval: 10 * time.Second,
	}
}

// Start 启动守护进程
// 当前进程已经是后台子进程时返回 nil，由调用方继续执行调度
func (d *Daemon) Start() error {
	if pid, running := d.IsRunning(); running {
		return fmt.Errorf("守护进程已在运行，PID: %d", pid)
	}
	if IsDaemonized() {
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	// 子进程在日志初始化之前的输出也写入日志文件
	logFile, err := os.OpenFile(d.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("无法打开日志文件 %s: %w", d.LogFile, err)
	}
	defer logFile.Close()

	cmd := d.childCommand(executable, logFile)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动守护进程失败: %w", err)
	}

	fmt.Fprintf(d.out, "守护进程已启动，PID: %d\n日志文件: %s\nPID文件: %s\n", cmd.Process.Pid, d.LogFile, d.PidFile)
	return nil
}

// childCommand 新会话中以 start 命令重新执行自身
func (d *Daemon) childCommand(executable string, output *os.File) *exec.Cmd {
	cmd := exec.Command(executable, "--config", d.ConfigPath, "start")
	cmd.Env = append(os.Environ(), EnvDaemonized+"=1")
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// Stop 发送 SIGTERM 并按 opts 等待进程退出
// 不设置 Force 时从不发送 SIGKILL，超时返回 ErrStillRunning
func (d *Daemon) Stop(opts StopOptions) error {
	pid, running := d.IsRunning()
	if !running {
		return ErrNotRunning
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("发送停止信号失败: %w", err)
	}
	fmt.Fprintf(d.out, "已发送停止信号到进程 %d，等待当前周期结束...\n", pid)

	if d.waitExit(pid, opts.Timeout) {
		d.RemovePid()
		fmt.Fprintln(d.out, "守护进程已停止")
		return nil
	}

	if !opts.Force {
		return fmt.Errorf("%w: 进程 %d 在 %v 内未退出，可使用 --force 强制终止", ErrStillRunning, pid, opts.Timeout)
	}

	fmt.Fprintf(d.out, "进程 %d 在 %v 内未退出，强制终止\n", pid, opts.Timeout)
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("强制终止失败: %w", err)
	}
	d.waitExit(pid, 5*time.Second)
	d.RemovePid()
	fmt.Fprintln(d.out, "守护进程已强制停止")
	return nil
}

// waitExit 等待进程退出，timeout 为 0 时不限时
func (d *Daemon) waitExit(pid int, timeout time.Duration) bool {
	start := time.Now()
	lastReport := start

	for processAlive(pid) {
		if timeout > 0 && time.Since(start) >= timeout {
			return false
		}
		if time.Since(lastReport) >= d.progressInterval {
			fmt.Fprintf(d.out, "仍在等待进程 %d 退出 (已等待 %v)\n", pid, time.Since(start).Round(time.Second))
			lastReport = time.Now()
		}
		time.Sleep(d.pollInterval)
	}
	return true
}

// Restart 停止正在运行的守护进程后重新启动
func (d *Daemon) Restart(opts StopOptions) error {
	if err := d.Stop(opts); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return d.Start()
}

// Status 显示守护进程状态
func (d *Daemon) Status() {
	pid, running := d.IsRunning()
	if !running {
		fmt.Fprintln(d.out, "守护进程未运行")
		return
	}
	fmt.Fprintf(d.out, "守护进程运行中，PID: %d\nPID文件: %s\n日志文件: %s\n", pid, d.PidFile, d.LogFile)
}

// IsRunning 根据 PID 文件检查守护进程是否运行
func (d *Daemon) IsRunning() (int, bool) {
	pid, err := d.readPid()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func (d *Daemon) readPid() (int, error) {
	data, err := os.ReadFile(d.PidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("PID文件内容无效: %q", data)
	}
	return pid, nil
}

// processAlive 信号 0 只检查进程是否存在
func processAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// WritePid 写入当前进程的 PID
func (d *Daemon) WritePid() error {
	return writePid(d.PidFile, os.Getpid())
}

func writePid(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

// RemovePid 删除 PID 文件
func (d *Daemon) RemovePid() {
	os.Remove(d.PidFile)
}

// IsDaemonized 检查当前进程是否是守护进程
func IsDaemonized() bool {
	return os.Getenv(EnvDaemonized) == "1"
}
