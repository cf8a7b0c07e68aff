package daemon

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext 返回收到 SIGINT 或 SIGTERM 时取消的 context
// 正在执行的续期周期不受影响，调度器在下一次等待时退出
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Printf("收到信号 %v，当前周期结束后退出...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
