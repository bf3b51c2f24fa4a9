package service

import (
	"path/filepath"
	"testing"

	"tokencore/internal/config"
	"tokencore/internal/infrastructure/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的 sqlite 库，表结构与生产环境共用同一份迁移
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				StateTransition: "token-state-transition",
				BalanceChanged:  "token-balance-changed",
			},
		},
		Token: config.TokenConfig{
			DefaultMaxSupply:    "1000000",
			DefaultIssueRate:    "0.001",
			DefaultBurnRate:     "0.0005",
			CollectionThreshold: "1000",
			RewardExpiryHours:   720,
		},
		Governance: config.GovernanceConfig{
			VotingDelayHours:     24,
			VotingDurationHours:  168,
			EmergencyWindowHours: 24,
			DefaultMinimumQuorum: 200,
			EmergencyQuorum:      100,
			ExecutionDelayHours:  0,
		},
		Business: config.BusinessConfig{
			MaxRetryCount: 3,
		},
	}
}
