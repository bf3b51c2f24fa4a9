package job

import (
	"context"
	"log"
	"time"

	"tokencore/internal/config"
	"tokencore/internal/service"

	"gorm.io/gorm"
)

// RewardExpiryJob 奖励过期清扫任务
// 把超过有效期仍未处理的奖励记录置为 EXPIRED。
// 没有待清扫对象的轮次是正常的空转，不产生任何写入。
type RewardExpiryJob struct {
	db        *gorm.DB
	rewardSvc *service.RewardService
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewRewardExpiryJob(db *gorm.DB, cfg *config.Config, rewardSvc *service.RewardService) *RewardExpiryJob {
	return &RewardExpiryJob{
		db:        db,
		rewardSvc: rewardSvc,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  time.Minute,
		batchSize: 100,
	}
}

func (j *RewardExpiryJob) Start(ctx context.Context) {
	log.Println("[RewardExpiryJob] 奖励过期清扫任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[RewardExpiryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[RewardExpiryJob] 任务停止")
			return
		case <-ticker.C:
			j.expireOverdue(ctx)
		}
	}
}

func (j *RewardExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *RewardExpiryJob) expireOverdue(ctx context.Context) {
	expired, err := j.rewardSvc.ExpireOverdue(ctx, j.batchSize)
	if err != nil {
		log.Printf("[RewardExpiryJob] 清扫失败: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[RewardExpiryJob] 本轮清扫 %d 条过期奖励", expired)
	}
}
