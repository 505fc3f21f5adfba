package sink

import (
	"context"
	"fmt"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Redis appends each run to a list
type Redis struct {
	client *redis.Client
	key    string
}

// DialRedis parses url (redis://[:password@]host:port/db) and checks the
// server answers
func DialRedis(ctx context.Context, url, key string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	log.Infof("Connected to Redis at %s", opts.Addr)
	return &Redis{client: client, key: key}, nil
}

func (s *Redis) Save(ctx context.Context, r walkingpad.RunRecord) error {
	b, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key, b).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", s.key, err)
	}
	return nil
}

// Runs reads back the whole list
func (s *Redis) Runs(ctx context.Context) ([]walkingpad.RunRecord, error) {
	vals, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]walkingpad.RunRecord, 0, len(vals))
	for _, v := range vals {
		r, err := Unmarshal([]byte(v))
		if err != nil {
			return out, fmt.Errorf("redis %s: %w", s.key, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
