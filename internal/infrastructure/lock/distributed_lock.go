package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：同一用户的两笔余额变动同时到达（重复提交、并发任务）
//
// 如果没有分布式锁：
//   goroutine1: 读余额=100 -> 扣减100 -> 余额=0   OK
//   goroutine2: 读余额=100 -> 扣减100 -> 余额=-100 超扣了！
//
// 加了分布式锁：
//   goroutine1: 获取锁 -> 读余额=100 -> 扣减100 -> 余额=0 -> 释放锁
//   goroutine2: 等待锁 -> 读余额=0 -> 余额不足，拒绝
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
//
// 【关键点】使用 SetNX 命令，只有当 key 不存在时才能设置成功
// 这保证了同一时刻只有一个客户端能获取到锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】使用 Lua 脚本保证"检查+删除"操作的原子性
//
// 为什么要检查 value？
//
//	场景：A 获取锁 -> A 处理超时，锁自动过期 -> B 获取锁 -> A 执行完毕，调用 Unlock
//	如果不检查 value，A 会把 B 的锁删掉！
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：业务维度的锁
// ============================================================================

// NewBalanceLock 余额变动锁（按用户+空间维度）
//
// 【设计思考】为什么按用户维度加锁？
//
// 方案1：全局锁 —— 并发度极低，用户A变动时用户B也要等待
// 方案2：按用户加锁  <-- 我们的选择
//   - 不同用户可以并发变动
//   - 同一用户串行化（这正是我们想要的）
func NewBalanceLock(client *redis.Client, userID string, spaceID int64, historyNo string) *DistributedLock {
	key := fmt.Sprintf("token:lock:balance:%d:%s", spaceID, userID)
	// value 使用履历号，便于追踪是哪个请求持有锁
	return NewDistributedLock(client, key, historyNo, 30*time.Second)
}

// NewRepairLock 余额修复锁
// 修复与普通变动共用余额锁 key，保证修复期间没有并发写入
func NewRepairLock(client *redis.Client, userID string, spaceID int64, operator string) *DistributedLock {
	key := fmt.Sprintf("token:lock:balance:%d:%s", spaceID, userID)
	return NewDistributedLock(client, key, "repair:"+operator, 60*time.Second)
}

// NewPoolLock 代币池操作锁（按空间维度）
// 池内数据库侧有 FOR UPDATE 行锁兜底，这把锁用于缩短锁等待
func NewPoolLock(client *redis.Client, spaceID int64, opRef string) *DistributedLock {
	key := fmt.Sprintf("token:lock:pool:%d", spaceID)
	return NewDistributedLock(client, key, opRef, 30*time.Second)
}
