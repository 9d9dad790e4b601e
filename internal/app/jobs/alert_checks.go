// Package jobs runs the periodic background work of the service.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sams-http-service/internal/domain/services"
)

// Checker 执行一次超时与容量检查
type Checker interface {
	RunChecks(ctx context.Context) (*services.CheckResult, error)
}

// AlertChecks 按固定间隔运行告警规则检查
type AlertChecks struct {
	checker  Checker
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewAlertChecks 创建周期检查任务，默认间隔5分钟
func NewAlertChecks(checker Checker, interval time.Duration, log *zap.Logger) *AlertChecks {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := interval
	if timeout > time.Minute {
		timeout = time.Minute
	}
	return &AlertChecks{checker: checker, interval: interval, timeout: timeout, log: log}
}

// Run 阻塞直到 ctx 取消
func (j *AlertChecks) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info("告警周期检查已启动", zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			j.log.Info("告警周期检查已停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一次检查，失败只记录日志
func (j *AlertChecks) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	result, err := j.checker.RunChecks(ctx)
	if err != nil {
		j.log.Error("告警周期检查失败", zap.Error(err))
		return
	}
	if n := len(result.Overstay) + len(result.Capacity); n > 0 {
		j.log.Info("告警周期检查完成",
			zap.Int("overstay", len(result.Overstay)),
			zap.Int("capacity", len(result.Capacity)),
		)
	}
}
