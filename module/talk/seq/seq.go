package seq

import (
	"context"
	"time"

	"SProject/module/talk/model"
	errs "SProject/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Allocator 按会话发号：严格单调递增，从 1 起步。
// 并发 append 只在取号这一步串行化，读路径完全无锁。
type Allocator interface {
	Next(ctx context.Context, convID string) (int64, error)
}

// ===== Redis 实现（Mongo 高水位回填） =====

// 号在段内直接 INCR；key 不存在（冷会话 / 过期）返回 {1} 让上层回源。
var luaNext = redis.NewScript(`
  local k = KEYS[1]
  if redis.call('EXISTS', k) == 0 then
    return {1}
  end
  local v = redis.call('INCR', k)
  redis.call('PEXPIRE', k, 3600000)
  return {0, v}
`)

// 回填高水位：NX 防止并发回填互相覆盖，随后 INCR 取号。
var luaLoad = redis.NewScript(`
  local k = KEYS[1]
  redis.call('SET', k, ARGV[1], 'NX')
  redis.call('PEXPIRE', k, 3600000)
  return redis.call('INCR', k)
`)

type RedisAllocator struct {
	Rdb      redis.Scripter
	SeqColl  *mongo.Collection // seq_conversation：高水位回源
	KeyFn    func(convID string) string
	MaxRetry int
}

func NewRedisAllocator(rdb redis.Scripter, db *mongo.Database) *RedisAllocator {
	return &RedisAllocator{
		Rdb:     rdb,
		SeqColl: db.Collection(model.SeqConvTableName),
	}
}

func defaultKey(convID string) string { return "seq:conv:" + convID }

func (a *RedisAllocator) ensure() {
	if a.KeyFn == nil {
		a.KeyFn = defaultKey
	}
	if a.MaxRetry == 0 {
		a.MaxRetry = 5
	}
}

func (a *RedisAllocator) Next(ctx context.Context, convID string) (int64, error) {
	a.ensure()
	key := a.KeyFn(convID)

	// 1) 热路径：段内直接发号
	if res, e := luaNext.Run(ctx, a.Rdb, []string{key}).Result(); e == nil {
		arr := res.([]interface{})
		if arr[0].(int64) == 0 {
			return arr[1].(int64), nil
		}
		// {1} -> 回源
	}

	// 2) 回源 Mongo 取高水位 -> 写回 Redis -> 再发号
	var lastErr error
	for i := 0; i < a.MaxRetry; i++ {
		var sc model.SeqConversation
		err := a.SeqColl.FindOne(ctx, bson.M{"conversation_id": convID}).Decode(&sc)
		if err != nil && err != mongo.ErrNoDocuments {
			lastErr = err
			break
		}

		v, err := luaLoad.Run(ctx, a.Rdb, []string{key}, sc.MaxSeq).Result()
		if err != nil {
			lastErr = err
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n, ok := v.(int64); ok {
			return n, nil
		}
		lastErr = errs.New("unexpected redis reply", "reply", v)
	}
	if lastErr == nil {
		lastErr = errs.New("seq alloc retry exceeded", "conv", convID)
	}
	return 0, errs.Wrap(lastErr)
}
