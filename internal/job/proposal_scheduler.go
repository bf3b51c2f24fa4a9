package job

import (
	"context"
	"log"
	"time"

	"tokencore/internal/config"
	"tokencore/internal/service"

	"gorm.io/gorm"
)

// ProposalSchedulerJob 提案生命周期推进任务
// 每轮做两件事：激活已到投票开始时刻的草案，
// 结算投票期已结束的提案。
type ProposalSchedulerJob struct {
	db            *gorm.DB
	governanceSvc *service.GovernanceService
	cfg           *config.Config
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewProposalSchedulerJob(db *gorm.DB, cfg *config.Config, governanceSvc *service.GovernanceService) *ProposalSchedulerJob {
	return &ProposalSchedulerJob{
		db:            db,
		governanceSvc: governanceSvc,
		cfg:           cfg,
		stopCh:        make(chan struct{}),
		interval:      30 * time.Second,
		batchSize:     50,
	}
}

func (j *ProposalSchedulerJob) Start(ctx context.Context) {
	log.Println("[ProposalSchedulerJob] 提案推进任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ProposalSchedulerJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ProposalSchedulerJob] 任务停止")
			return
		case <-ticker.C:
			j.advanceProposals(ctx)
		}
	}
}

func (j *ProposalSchedulerJob) Stop() {
	close(j.stopCh)
}

func (j *ProposalSchedulerJob) advanceProposals(ctx context.Context) {
	activated, err := j.governanceSvc.ActivateDue(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ProposalSchedulerJob] 批量激活失败: %v", err)
	} else if activated > 0 {
		log.Printf("[ProposalSchedulerJob] 本轮激活 %d 个提案", activated)
	}

	finalized, err := j.governanceSvc.FinalizeDue(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ProposalSchedulerJob] 批量结算失败: %v", err)
	} else if finalized > 0 {
		log.Printf("[ProposalSchedulerJob] 本轮结算 %d 个提案", finalized)
	}
}
