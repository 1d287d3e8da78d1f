// Package cache wraps Redis: the per-game action log and the rating leaderboard.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	leaderboardKey  = "ohhell:leaderboard"
	actionStreamCap = 5000
)

// GameActionRecord is one entry of a game's action log.
type GameActionRecord struct {
	GameID        string                 `json:"gameId"`
	ActionIndex   int                    `json:"actionIndex"`
	ActorID       string                 `json:"actorId,omitempty"` // empty for game-level events
	ActionType    string                 `json:"actionType"`
	ActionPayload map[string]interface{} `json:"actionPayload"`
	Timestamp     int64                  `json:"timestamp"` // unix millis
}

// RatingEntry is one leaderboard row.
type RatingEntry struct {
	PlayerID string `json:"playerId"`
	Rating   int    `json:"rating"`
}

// Cache is a Redis-backed action log and leaderboard.
type Cache struct {
	rdb *redis.Client
	log *logrus.Entry
}

// New connects to Redis at addr. The connection is lazy; call Ping to check it.
func New(addr, password string, log *logrus.Logger) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: password}), log)
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, log *logrus.Logger) *Cache {
	return &Cache{rdb: rdb, log: log.WithField("component", "cache")}
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

func actionStreamKey(gameID string) string {
	return "ohhell:actions:" + gameID
}

func encodeAction(rec GameActionRecord) (map[string]interface{}, error) {
	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"index":   rec.ActionIndex,
		"actor":   rec.ActorID,
		"type":    rec.ActionType,
		"payload": string(payload),
		"ts":      rec.Timestamp,
	}, nil
}

func decodeAction(gameID string, values map[string]interface{}) (GameActionRecord, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}
	rec := GameActionRecord{GameID: gameID, ActorID: str("actor"), ActionType: str("type")}
	var err error
	if rec.ActionIndex, err = strconv.Atoi(str("index")); err != nil {
		return rec, fmt.Errorf("action index: %w", err)
	}
	if rec.Timestamp, err = strconv.ParseInt(str("ts"), 10, 64); err != nil {
		return rec, fmt.Errorf("action timestamp: %w", err)
	}
	if p := str("payload"); p != "" {
		if err := json.Unmarshal([]byte(p), &rec.ActionPayload); err != nil {
			return rec, fmt.Errorf("action payload: %w", err)
		}
	}
	return rec, nil
}

// PublishGameAction appends rec to its game's action stream.
func (c *Cache) PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	values, err := encodeAction(rec)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: actionStreamKey(rec.GameID),
		MaxLen: actionStreamCap,
		Approx: true,
		Values: values,
	}).Err()
}

// GameActions returns a game's action log, oldest first.
func (c *Cache) GameActions(ctx context.Context, gameID string) ([]GameActionRecord, error) {
	msgs, err := c.rdb.XRange(ctx, actionStreamKey(gameID), "-", "+").Result()
	if err != nil {
		return nil, err
	}
	out := make([]GameActionRecord, 0, len(msgs))
	for _, m := range msgs {
		rec, err := decodeAction(gameID, m.Values)
		if err != nil {
			c.log.WithError(err).WithField("entry", m.ID).Warn("Skipping malformed action entry.")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// LastActionIndex returns the index of the newest entry in a game's action
// log, or 0 when the log is empty.
func (c *Cache) LastActionIndex(ctx context.Context, gameID string) (int, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, actionStreamKey(gameID), "+", "-", 1).Result()
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	rec, err := decodeAction(gameID, msgs[0].Values)
	if err != nil {
		return 0, err
	}
	return rec.ActionIndex, nil
}

// DeleteGameActions drops a game's action log.
func (c *Cache) DeleteGameActions(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, actionStreamKey(gameID)).Err()
}

// SetRating places or moves a player on the leaderboard.
func (c *Cache) SetRating(ctx context.Context, playerID string, rating int) error {
	return c.rdb.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(rating), Member: playerID}).Err()
}

// RemovePlayer takes a player off the leaderboard.
func (c *Cache) RemovePlayer(ctx context.Context, playerID string) error {
	return c.rdb.ZRem(ctx, leaderboardKey, playerID).Err()
}

// TopRatings returns the n highest rated players.
func (c *Cache) TopRatings(ctx context.Context, n int64) ([]RatingEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RatingEntry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, RatingEntry{PlayerID: id, Rating: int(z.Score)})
	}
	return out, nil
}
