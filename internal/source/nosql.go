package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/embedgate/embedgate/internal/retrieval"
)

// NoSQLLoader extracts documents from a Redis keyspace. Keys matching the
// configured pattern become documents; string values are taken verbatim,
// hashes render as "field: value" lines.
type NoSQLLoader struct {
	cfg *NoSQLConfig
}

func (l *NoSQLLoader) Load(ctx context.Context) ([]retrieval.Document, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     l.cfg.Addr,
		Password: l.cfg.Password,
		DB:       l.cfg.DB,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to source keyspace: %w", err)
	}

	var docs []retrieval.Document
	iter := client.Scan(ctx, 0, l.cfg.KeyPattern, int64(l.cfg.SampleLimit)).Iterator()
	for iter.Next(ctx) {
		if len(docs) >= l.cfg.SampleLimit {
			break
		}
		key := iter.Val()

		content, err := l.readKey(ctx, client, key)
		if err != nil {
			return nil, err
		}
		if content == "" {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:         uuid.NewString(),
			Source:     key,
			SourceKind: string(KindNoSQL),
			Content:    content,
			Metadata:   map[string]string{"key": key},
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning keyspace: %w", err)
	}
	return docs, nil
}

func (l *NoSQLLoader) readKey(ctx context.Context, client *redis.Client, key string) (string, error) {
	kind, err := client.Type(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("typing key %s: %w", key, err)
	}

	switch kind {
	case "string":
		val, err := client.Get(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("reading key %s: %w", key, err)
		}
		return key + ": " + val, nil
	case "hash":
		fields, err := client.HGetAll(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("reading hash %s: %w", key, err)
		}
		parts := []string{"[" + key + "]"}
		for field, val := range fields {
			parts = append(parts, field+": "+val)
		}
		return strings.Join(parts, "\n"), nil
	case "list":
		vals, err := client.LRange(ctx, key, 0, 24).Result()
		if err != nil {
			return "", fmt.Errorf("reading list %s: %w", key, err)
		}
		return key + ": [" + strings.Join(vals, ", ") + "]", nil
	default:
		// Sets, sorted sets and streams are skipped.
		return "", nil
	}
}
