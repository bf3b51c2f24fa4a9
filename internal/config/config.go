package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Token      TokenConfig      `mapstructure:"token"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Business   BusinessConfig   `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	StateTransition string `mapstructure:"state_transition"`
	BalanceChanged  string `mapstructure:"balance_changed"`
}

// TokenConfig 代币池相关配置
type TokenConfig struct {
	DefaultMaxSupply    string `mapstructure:"default_max_supply"`   // 默认最大供给量
	DefaultIssueRate    string `mapstructure:"default_issue_rate"`   // 默认发行率
	DefaultBurnRate     string `mapstructure:"default_burn_rate"`    // 默认销毁率
	CollectionThreshold string `mapstructure:"collection_threshold"` // 回收阈值
	RewardExpiryHours   int    `mapstructure:"reward_expiry_hours"`  // 奖励有效期（小时）
}

// GovernanceConfig 治理相关配置
type GovernanceConfig struct {
	VotingDelayHours     int `mapstructure:"voting_delay_hours"`     // 创建到投票开始的延迟
	VotingDurationHours  int `mapstructure:"voting_duration_hours"`  // 默认投票时长
	EmergencyWindowHours int `mapstructure:"emergency_window_hours"` // 紧急提案投票窗口
	DefaultMinimumQuorum int `mapstructure:"default_minimum_quorum"` // 默认最低法定投票权
	EmergencyQuorum      int `mapstructure:"emergency_quorum"`       // 紧急提案法定投票权
	ExecutionDelayHours  int `mapstructure:"execution_delay_hours"`  // 可决后执行延迟
}

type BusinessConfig struct {
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
