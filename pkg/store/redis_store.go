// scry/pkg/store/redis_store.go

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/logging"
)

var ctx = context.Background()

const (
	indexKeyPrefix = "scry:index:"
	resultsChannel = "scry:results"
)

// RedisStore keeps extracted feature documents in Redis, one file entry
// and one entry per function, so that a corrupt or missing function
// degrades to an empty feature set without losing the rest of the
// index.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("Connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to connect to Redis", err,
			map[string]interface{}{"addr": addr})
	}

	logging.Logger.Info().Msg("Successfully connected to Redis")
	return &RedisStore{client: client}, nil
}

func fileKey(name string) string {
	return indexKeyPrefix + name + ":file"
}

func functionKey(name string, addr uint64) string {
	return fmt.Sprintf("%s%s:fn:%016x", indexKeyPrefix, name, addr)
}

// SaveIndexDocument writes the document under per-function keys.
func (s *RedisStore) SaveIndexDocument(name string, doc *features.Document) error {
	fileData, err := json.Marshal(doc.File)
	if err != nil {
		return logging.NewError(logging.ErrorTypeStore, "failed to marshal file features", err, nil)
	}
	if err := s.client.Set(ctx, fileKey(name), fileData, 0).Err(); err != nil {
		return logging.NewError(logging.ErrorTypeStore, "failed to store file features", err,
			map[string]interface{}{"index": name})
	}

	for _, fn := range doc.Functions {
		data, err := json.Marshal(fn)
		if err != nil {
			return logging.NewError(logging.ErrorTypeStore, "failed to marshal function document", err,
				map[string]interface{}{"function": fn.Address})
		}
		if err := s.client.Set(ctx, functionKey(name, fn.Address), data, 0).Err(); err != nil {
			return logging.NewError(logging.ErrorTypeStore, "failed to store function document", err,
				map[string]interface{}{"function": fn.Address})
		}
	}

	logging.Logger.Info().Str("index", name).Int("functions", len(doc.Functions)).Msg("Stored feature index")
	return nil
}

// LoadIndexDocument reassembles a document. A function entry that fails
// to decode is reported as an extraction error and skipped; the rest of
// the index loads normally.
func (s *RedisStore) LoadIndexDocument(name string) (*features.Document, error) {
	doc := &features.Document{}

	fileData, err := s.client.Get(ctx, fileKey(name)).Result()
	switch {
	case err == redis.Nil:
		logging.Logger.Debug().Str("index", name).Msg("No file features stored")
	case err != nil:
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to load file features", err,
			map[string]interface{}{"index": name})
	default:
		if err := json.Unmarshal([]byte(fileData), &doc.File); err != nil {
			extractErr := logging.NewError(logging.ErrorTypeExtract, "corrupt file features, treating as empty", err,
				map[string]interface{}{"index": name})
			logging.LogError(logging.Logger, extractErr)
		}
	}

	keys, err := s.scanKeys(indexKeyPrefix + name + ":fn:*")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return doc, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to load function documents", err,
			map[string]interface{}{"index": name})
	}

	for i, value := range values {
		if value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var fn features.FunctionDoc
		if err := json.Unmarshal([]byte(raw), &fn); err != nil {
			extractErr := logging.NewError(logging.ErrorTypeExtract, "corrupt function document, treating as empty", err,
				map[string]interface{}{"key": keys[i]})
			logging.LogError(logging.Logger, extractErr)
			if addr, perr := functionAddrFromKey(keys[i]); perr == nil {
				doc.Functions = append(doc.Functions, features.FunctionDoc{Address: addr})
			}
			continue
		}
		doc.Functions = append(doc.Functions, fn)
	}

	return doc, nil
}

// LoadIndex loads a document and builds the in-memory index.
func (s *RedisStore) LoadIndex(name string) (*features.Index, error) {
	doc, err := s.LoadIndexDocument(name)
	if err != nil {
		return nil, err
	}
	ix, err := doc.BuildIndex()
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeExtract, "failed to build feature index", err,
			map[string]interface{}{"index": name})
	}
	return ix, nil
}

// ListIndexes names every stored feature index.
func (s *RedisStore) ListIndexes() ([]string, error) {
	keys, err := s.scanKeys(indexKeyPrefix + "*:file")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, indexKeyPrefix), ":file")
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PublishResults pushes a rendered result payload to subscribers.
func (s *RedisStore) PublishResults(runID string, payload []byte) error {
	msg := fmt.Sprintf("%s=%s", runID, payload)
	if err := s.client.Publish(ctx, resultsChannel, msg).Err(); err != nil {
		return logging.NewError(logging.ErrorTypeStore, "failed to publish results", err,
			map[string]interface{}{"run_id": runID})
	}
	return nil
}

func (s *RedisStore) scanKeys(pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, logging.NewError(logging.ErrorTypeStore, "failed to scan keys", err,
				map[string]interface{}{"pattern": pattern})
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func functionAddrFromKey(key string) (uint64, error) {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return 0, fmt.Errorf("malformed function key %q", key)
	}
	return strconv.ParseUint(key[i+1:], 16, 64)
}
