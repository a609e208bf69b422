package repo

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct{ C *redis.Client }

func NewRedis(addr string) *Redis {
	return &Redis{C: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.C.Close() }

// AllowLogin — фиксированное окно в минуту на ключ (email или IP).
// INCR+EXPIRE; при недоступном Redis пропускаем, логин важнее лимита.
func (r *Redis) AllowLogin(ctx context.Context, key string, perMin int) bool {
	if perMin <= 0 {
		return true
	}
	n, err := r.C.Incr(ctx, "rl:login:"+key).Result()
	if err != nil {
		return true
	}
	if n == 1 {
		r.C.Expire(ctx, "rl:login:"+key, time.Minute)
	}
	return n <= int64(perMin)
}
