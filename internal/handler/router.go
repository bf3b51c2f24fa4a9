package handler

import (
	"tokencore/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 余额相关
		balance := api.Group("/balance")
		{
			balance.GET("/current", h.GetBalance)
			balance.POST("/delta", h.RecordDelta)
			balance.GET("/history", h.ListHistory)
			balance.GET("/statistics", h.BalanceStatistics)
			balance.GET("/consistency", h.CheckConsistency)
			balance.POST("/repair", h.RepairBalance)
			balance.POST("/frozen", h.SetFrozen)
			balance.POST("/history/delete", h.DeleteHistory)
		}

		// 代币池相关
		pool := api.Group("/pool")
		{
			pool.POST("/create", h.CreatePool)
			pool.GET("/detail", h.GetPool)
			pool.GET("/list", h.ListPools)
			pool.POST("/issue", h.IssueTokens)
			pool.GET("/issuable", h.IssuableAmount)
			pool.POST("/status", h.UpdatePoolStatus)
			pool.GET("/health", h.PoolHealth)
			pool.GET("/collection-candidates", h.CollectionCandidates)
		}

		// 奖励相关
		reward := api.Group("/reward")
		{
			reward.POST("/create", h.CreateReward)
			reward.POST("/approve", h.ApproveReward)
			reward.POST("/process", h.ProcessReward)
			reward.POST("/cancel", h.CancelReward)
			reward.GET("/detail", h.GetReward)
			reward.GET("/list", h.ListRewards)
			reward.GET("/statistics", h.RewardStatistics)
		}

		// 销毁决议相关
		burn := api.Group("/burn")
		{
			burn.POST("/create", h.CreateBurn)
			burn.POST("/ai-create", h.CreateAiBurn)
			burn.POST("/review", h.ReviewBurn)
			burn.POST("/approve", h.ApproveBurn)
			burn.POST("/reject", h.RejectBurn)
			burn.POST("/schedule", h.ScheduleBurn)
			burn.POST("/execute", h.ExecuteBurn)
			burn.POST("/start", h.StartBurnExecution)
			burn.POST("/complete", h.CompleteBurnExecution)
			burn.POST("/fail", h.FailBurnExecution)
			burn.POST("/cancel", h.CancelBurn)
			burn.GET("/detail", h.GetBurn)
			burn.GET("/list", h.ListBurns)
			burn.GET("/statistics", h.BurnStatistics)
		}

		// 治理相关
		governance := api.Group("/governance")
		{
			proposal := governance.Group("/proposal")
			{
				proposal.POST("/create", h.CreateProposal)
				proposal.POST("/emergency", h.CreateEmergencyProposal)
				proposal.POST("/activate", h.ActivateProposal)
				proposal.POST("/finalize", h.FinalizeProposal)
				proposal.POST("/queue", h.QueueProposal)
				proposal.POST("/execute", h.ExecuteProposal)
				proposal.POST("/cancel", h.CancelProposal)
				proposal.GET("/detail", h.GetProposal)
				proposal.GET("/list", h.ListProposals)
			}

			vote := governance.Group("/vote")
			{
				vote.POST("/cast", h.CastVote)
				vote.POST("/delegate", h.CastDelegateVote)
				vote.POST("/change", h.ChangeVote)
				vote.GET("/detail", h.GetVote)
				vote.GET("/list", h.ListVotes)
				vote.GET("/by-voter", h.ListVotesByVoter)
				vote.GET("/statistics", h.VoteStatistics)
			}
		}

		// SFRT相关
		sfrt := api.Group("/sfrt")
		{
			sfrt.GET("/simulate", h.SimulateSfrt)
			sfrt.POST("/distribute", h.DistributeSfrt)
			sfrt.POST("/adjust", h.AdjustSfrt)
			sfrt.POST("/withdraw", h.WithdrawSfrt)
			sfrt.GET("/balance", h.GetSfrtBalance)
			sfrt.GET("/transactions", h.ListSfrtTransactions)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
