package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

const (
	presenceKey    = "status"
	typingIndexKey = "typing:chats"
	changesChannel = "realtime:changes"
)

func typingKey(chatID string) string { return "typing:" + chatID }

// RedisStore keeps presence in one hash and typing in one hash per chat. Changes
// go through pub/sub so every replica's hub sees them.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects and pings.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) SetPresence(ctx context.Context, uid string, p models.Presence) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, presenceKey, uid, raw).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return s.publish(ctx, Change{Kind: ChangePresence, UID: uid})
}

func (s *RedisStore) Presence(ctx context.Context) (map[string]models.Presence, error) {
	raw, err := s.rdb.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	out := make(map[string]models.Presence, len(raw))
	for uid, v := range raw {
		var p models.Presence
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			logger.Log.Warn("presence_record_invalid", zap.String("uid", uid), zap.Error(err))
			continue
		}
		out[uid] = p
	}
	return out, nil
}

func (s *RedisStore) SetTyping(ctx context.Context, chatID, uid string, at time.Time) error {
	raw, err := json.Marshal(models.Typing{IsTyping: true, At: at})
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, typingKey(chatID), uid, raw)
	pipe.SAdd(ctx, typingIndexKey, chatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	return s.publish(ctx, Change{Kind: ChangeTyping, ChatID: chatID, UID: uid})
}

func (s *RedisStore) ClearTyping(ctx context.Context, chatID, uid string) error {
	n, err := s.rdb.HDel(ctx, typingKey(chatID), uid).Result()
	if err != nil {
		return fmt.Errorf("clear typing: %w", err)
	}
	if n == 0 {
		return nil
	}
	return s.publish(ctx, Change{Kind: ChangeTyping, ChatID: chatID, UID: uid})
}

func (s *RedisStore) Typing(ctx context.Context, chatID string) (map[string]models.Typing, error) {
	raw, err := s.rdb.HGetAll(ctx, typingKey(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get typing: %w", err)
	}
	out := make(map[string]models.Typing, len(raw))
	for uid, v := range raw {
		var t models.Typing
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		out[uid] = t
	}
	return out, nil
}

func (s *RedisStore) SweepTyping(ctx context.Context, cutoff time.Time) (int, error) {
	chats, err := s.rdb.SMembers(ctx, typingIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list typing chats: %w", err)
	}
	removed := 0
	for _, chatID := range chats {
		room, err := s.Typing(ctx, chatID)
		if err != nil {
			return removed, err
		}
		if len(room) == 0 {
			s.rdb.SRem(ctx, typingIndexKey, chatID)
			continue
		}
		for uid, t := range room {
			if !t.At.Before(cutoff) {
				continue
			}
			if err := s.ClearTyping(ctx, chatID, uid); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Watch subscribes to the change channel. The subscription closes with ctx.
func (s *RedisStore) Watch(ctx context.Context) <-chan Change {
	out := make(chan Change, 64)
	sub := s.rdb.Subscribe(ctx, changesChannel)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					logger.Log.Warn("realtime_change_invalid", zap.Error(err))
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) publish(ctx context.Context, c Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, changesChannel, raw).Err(); err != nil {
		logger.Log.Warn("realtime_publish_failed", zap.String("kind", c.Kind), zap.Error(err))
	}
	return nil
}
