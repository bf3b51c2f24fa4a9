// Package cache 管理 Redis 连接
//
// 本系统的 Redis 只承担分布式锁（余额变动・代币池发行的串行化），
// 不做数据缓存：余额的唯一真实来源是履历表，缓存一份副本
// 只会引入对账负担。
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"tokencore/internal/config"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

// InitRedis 建立 Redis 连接，启动时 Ping 失败直接终止进程
// 锁服务不可用时放任业务继续跑的风险比进程退出大
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	RedisClient = client
	log.Println("Redis 连接成功")
	return client
}
