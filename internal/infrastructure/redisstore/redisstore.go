// Package redisstore keeps order idempotency keys in Redis so that replays are
// recognised across every instance of the service.
package redisstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	keyPrefix     = "supershop:idem:"
	pendingMarker = "pending"
)

type Config struct {
	URL          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// NewClient parses the URL, applies timeouts and pings the server.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "redisstore: parse url")
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstore: ping")
	}
	return client, nil
}

// releaseScript deletes the key only while it still holds the pending marker,
// so a late Release never erases a completed order.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

type IdempotencyStore struct {
	rdb        redis.UniversalClient
	ttl        time.Duration
	pendingTTL time.Duration
}

var _ apporder.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore keeps completed keys for ttl (zero: forever). Pending
// reservations expire after pendingTTL so a crashed request cannot hold a key.
func NewIdempotencyStore(rdb redis.UniversalClient, ttl, pendingTTL time.Duration) *IdempotencyStore {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Second
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl, pendingTTL: pendingTTL}
}

func redisKey(scope, key string) string { return keyPrefix + scope + ":" + key }

// encodeReceipt stores a completed key as "<order id>:<total>".
func encodeReceipt(r apporder.Receipt) string {
	return strconv.FormatInt(r.OrderID, 10) + ":" + r.Total.String()
}

func decodeReceipt(val string) (apporder.Receipt, error) {
	idPart, totalPart, _ := strings.Cut(val, ":")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return apporder.Receipt{}, err
	}
	r := apporder.Receipt{OrderID: id}
	if totalPart != "" {
		if r.Total, err = decimal.NewFromString(totalPart); err != nil {
			return apporder.Receipt{}, err
		}
	}
	return r, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) (apporder.Receipt, bool, error) {
	k := redisKey(scope, key)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
		if err != nil {
			return apporder.Receipt{}, false, errors.Wrap(err, "redisstore: reserve")
		}
		if ok {
			return apporder.Receipt{}, true, nil
		}

		val, err := s.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return apporder.Receipt{}, false, errors.Wrap(err, "redisstore: read reservation")
		}
		if val == pendingMarker {
			return apporder.Receipt{}, false, apporder.ErrKeyInFlight
		}
		r, err := decodeReceipt(val)
		if err != nil {
			return apporder.Receipt{}, false, errors.Wrapf(err, "redisstore: corrupt value for %s", k)
		}
		return r, false, nil
	}
	return apporder.Receipt{}, false, apporder.ErrKeyInFlight
}

func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, receipt apporder.Receipt) error {
	err := s.rdb.Set(ctx, redisKey(scope, key), encodeReceipt(receipt), s.ttl).Err()
	return errors.Wrap(err, "redisstore: complete")
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	err := releaseScript.Run(ctx, s.rdb, []string{redisKey(scope, key)}, pendingMarker).Err()
	return errors.Wrap(err, "redisstore: release")
}
