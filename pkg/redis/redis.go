package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coachfit/backend/config"
)

// Client Redis 客户端封装
// 当前用于会员级调度互斥锁；后续可扩展缓存等场景
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── 会员级调度锁 ──
//
// 同一会员的"冲突预检 + 落库"必须串行化，否则两个并发请求可能同时通过预检。
// 数据库排除约束兜底保证不变量；此锁让常规并发路径在预检阶段即返回清晰的冲突错误。

const (
	lockPrefix     = "schedule:lock:subject:"
	lockTTL        = 10 * time.Second
	lockRetryDelay = 50 * time.Millisecond
	lockWaitLimit  = 3 * time.Second
)

// releaseScript 仅当持有者令牌匹配时删除锁，避免误删他人锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// WithSubjectLock 在持有指定会员调度锁的前提下执行 fn
// Redis 不可用（c 为 nil）时直接执行 fn，由数据库排除约束兜底
func (c *Client) WithSubjectLock(ctx context.Context, subjectID string, fn func() error) error {
	if c == nil {
		return fn()
	}

	key := lockPrefix + subjectID
	token := uuid.New().String()

	deadline := time.Now().Add(lockWaitLimit)
	for {
		ok, err := c.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			// Redis 异常时降级执行，不阻断预约
			c.logger.Warn("获取调度锁失败，降级为仅依赖数据库约束", zap.Error(err))
			return fn()
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("获取会员调度锁超时: subject=%s", subjectID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	defer func() {
		// 释放失败无需处理：TTL 到期后锁自动消失
		if err := releaseScript.Run(context.WithoutCancel(ctx), c.rdb, []string{key}, token).Err(); err != nil && err != goredis.Nil {
			c.logger.Warn("释放调度锁失败", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}()

	return fn()
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
