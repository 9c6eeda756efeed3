package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rentport/internal/constants"
)

const redisKeyPrefix = "rentport:session:"

type RedisStore struct {
	client   *redis.Client
	onExpire func(tokenHash string)
	ctx      context.Context
	cancel   func()
	wg       sync.WaitGroup
}

func NewRedisStore(host, port, username, password string) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithCancel(context.Background())

	store := &RedisStore{
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := store.client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, err
	}

	store.startCleanup()

	return store, nil
}

func (st *RedisStore) OnExpire(fn func(tokenHash string)) {
	st.onExpire = fn
}

func (st *RedisStore) Save(session *Session) {
	data := SessionData{
		TokenHash: session.TokenHash,
		UserID:    session.UserID,
		TabID:     session.TabID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal session: %v", err)
		return
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}

	key := redisKeyPrefix + session.TokenHash
	if err := st.client.Set(st.ctx, key, jsonData, ttl).Err(); err != nil {
		log.Printf("Failed to save session to Redis: %v", err)
	}
}

func (st *RedisStore) Get(tokenHash string) (*Session, bool) {
	key := redisKeyPrefix + tokenHash

	data, err := st.client.Get(st.ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("Failed to get session from Redis: %v", err)
		return nil, false
	}

	var sd SessionData
	if err := json.Unmarshal([]byte(data), &sd); err != nil {
		log.Printf("Failed to unmarshal session: %v", err)
		return nil, false
	}

	session := &Session{
		TokenHash: sd.TokenHash,
		UserID:    sd.UserID,
		TabID:     sd.TabID,
		CreatedAt: sd.CreatedAt,
		ExpiresAt: sd.ExpiresAt,
	}

	if session.IsExpired() {
		st.Delete(tokenHash)
		if st.onExpire != nil {
			st.onExpire(tokenHash)
		}
		return nil, false
	}

	return session, true
}

func (st *RedisStore) Delete(tokenHash string) {
	key := redisKeyPrefix + tokenHash
	if err := st.client.Del(st.ctx, key).Err(); err != nil {
		log.Printf("Failed to delete session from Redis: %v", err)
	}
}

func (st *RedisStore) Close() error {
	st.cancel()
	st.wg.Wait()
	return st.client.Close()
}

func (st *RedisStore) startCleanup() {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(constants.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-st.ctx.Done():
				return
			case <-ticker.C:
				st.cleanupExpired()
			}
		}
	}()
}

// Redis expires keys on its own via TTL; this sweep only fires the
// onExpire callbacks for keys about to lapse so the server can drop any
// realtime connections authenticated by them.
func (st *RedisStore) cleanupExpired() {
	pattern := redisKeyPrefix + "*"
	iter := st.client.Scan(st.ctx, 0, pattern, 100).Iterator()

	for iter.Next(st.ctx) {
		key := iter.Val()
		tokenHash := key[len(redisKeyPrefix):]

		ttl, err := st.client.TTL(st.ctx, key).Result()
		if err != nil {
			continue
		}

		if ttl <= 0 {
			st.Delete(tokenHash)
			if st.onExpire != nil {
				st.onExpire(tokenHash)
			}
		}
	}

	if err := iter.Err(); err != nil {
		log.Printf("Redis scan error: %v", err)
	}
}
