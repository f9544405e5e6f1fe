package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lancedesk/lancedesk/pkg/models"
	"github.com/redis/go-redis/v9"
)

// CachedUserDirectory is a read-through redis cache in front of a
// UserDirectory. Summaries are display-only, so a short TTL is enough and
// no invalidation path exists.
type CachedUserDirectory struct {
	next   UserDirectory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

const userSummaryTTL = 30 * time.Second

func NewCachedUserDirectory(next UserDirectory, client *redis.Client, logger *slog.Logger) *CachedUserDirectory {
	return &CachedUserDirectory{
		next:   next,
		client: client,
		ttl:    userSummaryTTL,
		logger: logger,
	}
}

func userSummaryKey(userID int64) string {
	return fmt.Sprintf("directory:user:%d", userID)
}

func (d *CachedUserDirectory) GetSummary(ctx context.Context, userID int64) (*models.UserSummary, error) {
	key := userSummaryKey(userID)
	if raw, err := d.client.Get(ctx, key).Bytes(); err == nil {
		var s models.UserSummary
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s, nil
		}
		// Corrupt entries fall through to the source.
	}

	s, err := d.next.GetSummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(s); err == nil {
		if err := d.client.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			d.logger.Warn("Failed to cache user summary", "user_id", userID, "error", err)
		}
	}
	return s, nil
}

func (d *CachedUserDirectory) GetSummaries(ctx context.Context, userIDs []int64) (map[int64]models.UserSummary, error) {
	out := make(map[int64]models.UserSummary, len(userIDs))
	var missing []int64

	for _, id := range userIDs {
		raw, err := d.client.Get(ctx, userSummaryKey(id)).Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		var s models.UserSummary
		if err := json.Unmarshal(raw, &s); err != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = s
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := d.next.GetSummaries(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, s := range fresh {
		out[id] = s
		if raw, err := json.Marshal(s); err == nil {
			if err := d.client.Set(ctx, userSummaryKey(id), raw, d.ttl).Err(); err != nil {
				d.logger.Warn("Failed to cache user summary", "user_id", id, "error", err)
			}
		}
	}
	return out, nil
}
