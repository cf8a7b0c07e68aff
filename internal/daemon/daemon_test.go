package daemon

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDaemon_Paths(t *testing.T) {
	dir := t.TempDir()
	d := NewDaemon(filepath.Join(dir, "config.yaml"))

	assert.Equal(t, filepath.Join(dir, "cert-renewer.pid"), d.PidFile)
	assert.Equal(t, filepath.Join(dir, "cert-renewer.log"), d.LogFile)

	cmd := d.childCommand("/usr/bin/cert-renewer", os.Stderr)
	assert.Equal(t, []string{"/usr/bin/cert-renewer", "--config", filepath.Join(dir, "config.yaml"), "start"}, cmd.Args)
	assert.Contains(t, cmd.Env, EnvDaemonized+"=1")
	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setsid)
}

func TestIsRunning(t *testing.T) {
	d := NewDaemon(filepath.Join(t.TempDir(), "config.yaml"))

	_, running := d.IsRunning()
	assert.False(t, running)

	require.NoError(t, d.WritePid())
	pid, running := d.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	d.RemovePid()
	_, running = d.IsRunning()
	assert.False(t, running)
}

func TestIsRunning_InvalidPidFile(t *testing.T) {
	d := NewDaemon(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, os.WriteFile(d.PidFile, []byte("not-a-pid"), 0644))

	_, running := d.IsRunning()
	assert.False(t, running)
}

func TestStart_AlreadyRunning(t *testing.T) {
	d := NewDaemon(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, d.WritePid())

	err := d.Start()
	assert.Error(t, err)
}

func TestStop_NotRunning(t *testing.T) {
	d := NewDaemon(filepath.Join(t.TempDir(), "config.yaml"))
	assert.ErrorIs(t, d.Stop(StopOptions{}), ErrNotRunning)
}

// startChild 启动子进程并写入 PID 文件，退出后由后台 goroutine 回收
func startChild(t *testing.T, d *Daemon, script string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command("sh", "-c", script)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	// 等待脚本设置好信号处理
	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ready\n", line)

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
	})

	require.NoError(t, writePid(d.PidFile, cmd.Process.Pid))
	return cmd
}

func quietDaemon(t *testing.T) *Daemon {
	d := NewDaemon(filepath.Join(t.TempDir(), "config.yaml"))
	d.out = io.Discard
	d.pollInterval = 10 * time.Millisecond
	return d
}

func TestStop_WaitsForExit(t *testing.T) {
	d := quietDaemon(t)
	cmd := startChild(t, d, "echo ready; exec sleep 30")

	require.NoError(t, d.Stop(StopOptions{}))
	assert.False(t, processAlive(cmd.Process.Pid))
	assert.NoFileExists(t, d.PidFile)
}

func TestStop_TimeoutWithoutForceKeepsProcess(t *testing.T) {
	d := quietDaemon(t)
	cmd := startChild(t, d, "trap '' TERM; echo ready; while :; do sleep 1; done")

	err := d.Stop(StopOptions{Timeout: 200 * time.Millisecond})
	require.ErrorIs(t, err, ErrStillRunning)

	assert.True(t, processAlive(cmd.Process.Pid))
	assert.FileExists(t, d.PidFile)
}

func TestStop_ForceKillsAfterTimeout(t *testing.T) {
	d := quietDaemon(t)
	cmd := startChild(t, d, "trap '' TERM; echo ready; while :; do sleep 1; done")

	require.NoError(t, d.Stop(StopOptions{Timeout: 200 * time.Millisecond, Force: true}))
	assert.False(t, processAlive(cmd.Process.Pid))
	assert.NoFileExists(t, d.PidFile)
}

func TestRestart_NotRunningStartsFromChild(t *testing.T) {
	d := quietDaemon(t)
	t.Setenv(EnvDaemonized, "1")

	// 后台子进程中 Start 直接返回，由调用方继续运行调度器
	assert.NoError(t, d.Restart(StopOptions{}))
}

func TestIsDaemonized(t *testing.T) {
	t.Setenv(EnvDaemonized, "")
	assert.False(t, IsDaemonized())

	t.Setenv(EnvDaemonized, "1")
	assert.True(t, IsDaemonized())
}

func TestSignalContext(t *testing.T) {
	ctx, cancel := SignalContext(context.Background())
	defer cancel()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
}
