package main

import (
	"context"
	"fmt"
	"time"

	"FuseLane/internal/biz"
	"FuseLane/internal/conf"
	"FuseLane/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartMaintenanceJobs 启动限流器后台维护任务
// 两个任务：协调存储存活探测、内存窗口清理
// 探测任务负责降级后的自动恢复（健康标志双向翻转）
func StartMaintenanceJobs(rc *conf.Resilience, store *biz.FailoverWindowStore,
	mem *data.MemoryWindowStore, logger log.Logger) (*cron.Cron, func(), error) {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	probeEvery := rc.RateLimit.ProbeInterval.AsDuration()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", probeEvery), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		store.Probe(ctx)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register liveness probe job: %w", err)
	}

	sweepEvery := rc.RateLimit.MemorySweepInterval.AsDuration()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
		mem.Cleanup()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register window sweep job: %w", err)
	}

	c.Start()
	helper.Infow("msg", "maintenance jobs started",
		"type", "startup",
		"probe_interval", probeEvery,
		"sweep_interval", sweepEvery,
	)

	cleanup := func() {
		helper.Info("stopping maintenance jobs")
		<-c.Stop().Done()
	}
	return c, cleanup, nil
}
