package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis pushes alerts onto a list that operators (or a paging bridge) pop
// from. The list outlives the process, so an alert raised just before a
// crash is not lost.
type Redis struct {
	client redis.UniversalClient
	key    string
}

func NewRedis(client redis.UniversalClient, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) Alert(ctx context.Context, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = r.client.LPush(ctx, r.key, b).Err()
	if err != nil {
		return fmt.Errorf("push alert: %w", err)
	}

	return nil
}

// Pending returns queued alerts, oldest first, without removing them.
func (r *Redis) Pending(ctx context.Context) ([]Alert, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	out := make([]Alert, 0, len(raw))

	for i := len(raw) - 1; i >= 0; i-- {
		var a Alert

		err = json.Unmarshal([]byte(raw[i]), &a)
		if err != nil {
			return nil, fmt.Errorf("unmarshal alert: %w", err)
		}

		out = append(out, a)
	}

	return out, nil
}
