package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// redisAppendScript stores one notification and trims the recipient's inbox.
// Every key carries the recipient's hash tag so the script runs on one
// cluster slot.
// KEYS[1] = zset of ids scored by seq
// KEYS[2] = hash id -> JSON
// KEYS[3] = set of retained source event ids
// KEYS[4] = set of unread ids
// ARGV[1] = id, ARGV[2] = seq, ARGV[3] = JSON, ARGV[4] = source event id, ARGV[5] = cap
var redisAppendScript = redis.NewScript(`
if ARGV[4] ~= "" then
	if redis.call("SADD", KEYS[3], ARGV[4]) == 0 then
		return 0
	end
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], ARGV[3])
redis.call("SADD", KEYS[4], ARGV[1])

local over = redis.call("ZCARD", KEYS[1]) - tonumber(ARGV[5])
if over > 0 then
	local old = redis.call("ZRANGE", KEYS[1], 0, over - 1)
	for _, id in ipairs(old) do
		local raw = redis.call("HGET", KEYS[2], id)
		if raw then
			local src = cjson.decode(raw)["source_event_id"]
			if src then
				redis.call("SREM", KEYS[3], src)
			end
		end
		redis.call("HDEL", KEYS[2], id)
		redis.call("SREM", KEYS[4], id)
	end
	redis.call("ZREMRANGEBYRANK", KEYS[1], 0, over - 1)
end
return 1
`)

// seqKey is a one-member sorted set whose score is the highest stored seq.
// It lives in its own slot and only moves up (ZADD GT).
const (
	seqKey    = "inbox:seq"
	seqMember = "last"
)

// RedisStore implements Store with a sorted set per recipient
type RedisStore struct {
	client *redis.Client
	cap    int
}

func NewRedisStore(client *redis.Client, capacity int) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &RedisStore{client: client, cap: capacity}
}

type recipientKeys struct {
	events, data, sources, unread string
}

func (k recipientKeys) list() []string {
	return []string{k.events, k.data, k.sources, k.unread}
}

func keysFor(recipientID string) recipientKeys {
	prefix := fmt.Sprintf("inbox:{%s}", recipientID)
	return recipientKeys{
		events:  prefix + ":events",
		data:    prefix + ":data",
		sources: prefix + ":sources",
		unread:  prefix + ":unread",
	}
}

func (s *RedisStore) Append(ctx context.Context, e NotificationEvent) (bool, error) {
	e.Read = false
	raw, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	res, err := redisAppendScript.Run(ctx, s.client, keysFor(e.RecipientID).list(),
		e.ID, e.Seq, string(raw), e.SourceEventID, s.cap,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis inbox append: %w", err)
	}
	if res != 1 {
		return false, nil
	}
	if err := s.client.ZAddGT(ctx, seqKey, redis.Z{Score: float64(e.Seq), Member: seqMember}).Err(); err != nil {
		return true, fmt.Errorf("redis inbox seq: %w", err)
	}
	return true, nil
}

func (s *RedisStore) List(ctx context.Context, recipientID string, afterSeq int64, limit int) ([]NotificationEvent, error) {
	k := keysFor(recipientID)
	by := &redis.ZRangeBy{Min: "(" + strconv.FormatInt(afterSeq, 10), Max: "+inf"}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, k.events, by).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	rawCmd := pipe.HMGet(ctx, k.data, ids...)
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	unreadCmd := pipe.SMIsMember(ctx, k.unread, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	unread := unreadCmd.Val()
	out := make([]NotificationEvent, 0, len(ids))
	for i, v := range rawCmd.Val() {
		raw, ok := v.(string)
		if !ok {
			continue // evicted between the two reads
		}
		var e NotificationEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		e.Read = i < len(unread) && !unread[i]
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) MarkRead(ctx context.Context, recipientID, id string) error {
	k := keysFor(recipientID)
	exists, err := s.client.HExists(ctx, k.data, id).Result()
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotificationNotFound
	}
	return s.client.SRem(ctx, k.unread, id).Err()
}

func (s *RedisStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	n, err := s.client.SCard(ctx, keysFor(recipientID).unread).Result()
	return int(n), err
}

func (s *RedisStore) LastSeq(ctx context.Context) (int64, error) {
	score, err := s.client.ZScore(ctx, seqKey, seqMember).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return int64(score), err
}
