package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wellnest/internal/domain"
)

const (
	redisDataField   = "data"
	redisUpdateField = "ut"
	redisTxAttempts  = 16
)

// RedisStore is a DocumentStore shared between processes. Each document is
// a hash holding its JSON body and update time; each collection is a set of
// member paths; writes publish the changed path on a channel every store
// instance listens to.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	log    zerolog.Logger
	hub    *hub

	tsMu   sync.Mutex
	lastTS int64

	cancel context.CancelFunc
	done   chan struct{}
}

var _ domain.DocumentStore = (*RedisStore)(nil)

// NewRedisStore connects to the server at url (redis://...) and starts the
// change listener. All keys are namespaced under prefix.
func NewRedisStore(ctx context.Context, url, prefix string, log zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalid, "redis url", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, mapRedisError("connect", err)
	}

	if prefix == "" {
		prefix = "wellnest"
	}
	s := &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		log:    log.With().Str("store", "redis").Logger(),
		done:   make(chan struct{}),
	}
	s.hub = newHub(s.snapshot, s.log)

	// Subscribe synchronously so no write published after construction is missed.
	ps := rdb.Subscribe(ctx, s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = rdb.Close()
		return nil, mapRedisError("subscribe", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(lctx, ps)
	return s, nil
}

func (s *RedisStore) docKey(path string) string {
	return s.prefix + ":doc:" + path
}

func (s *RedisStore) collectionKey(col string) string {
	return s.prefix + ":col:" + col
}

func (s *RedisStore) channel() string {
	return s.prefix + ":changes"
}

// Get implements domain.DocumentStore.
func (s *RedisStore) Get(ctx context.Context, path string) (domain.Document, error) {
	if err := validPath("get", path); err != nil {
		return domain.Document{}, err
	}
	vals, err := s.rdb.HMGet(ctx, s.docKey(path), redisDataField, redisUpdateField).Result()
	if err != nil {
		return domain.Document{}, mapRedisError("get", err)
	}
	doc, ok, err := decodeHash(path, vals)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, domain.Errorf(domain.KindNotFound, "get", "%s", path)
	}
	return doc, nil
}

// Set implements domain.DocumentStore. Merges run as optimistic
// transactions on the document key.
func (s *RedisStore) Set(ctx context.Context, path string, data domain.Data, opts domain.SetOptions) error {
	if err := validPath("set", path); err != nil {
		return err
	}
	key := s.docKey(path)
	return s.transact(ctx, "set", key, func(tx *redis.Tx, now int64) error {
		var existing domain.Data
		if opts.Merge {
			vals, err := tx.HMGet(ctx, key, redisDataField, redisUpdateField).Result()
			if err != nil {
				return err
			}
			cur, ok, err := decodeHash(path, vals)
			if err != nil {
				return err
			}
			if ok {
				existing = cur.Data
			}
		}
		return s.write(ctx, tx, path, existing, data, opts.Merge, now)
	})
}

// Create implements domain.DocumentStore.
func (s *RedisStore) Create(ctx context.Context, path string, data domain.Data) error {
	if err := validPath("create", path); err != nil {
		return err
	}
	key := s.docKey(path)
	return s.transact(ctx, "create", key, func(tx *redis.Tx, now int64) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.Errorf(domain.KindAlreadyExists, "create", "%s", path)
		}
		return s.write(ctx, tx, path, nil, data, false, now)
	})
}

// Query implements domain.DocumentStore.
func (s *RedisStore) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := validPath("query", q.Collection); err != nil {
		return nil, err
	}
	col := strings.TrimSuffix(q.Collection, "/")
	paths, err := s.rdb.SMembers(ctx, s.collectionKey(col)).Result()
	if err != nil {
		return nil, mapRedisError("query", err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(paths))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, path := range paths {
			cmds[i] = p.HMGet(ctx, s.docKey(path), redisDataField, redisUpdateField)
		}
		return nil
	})
	if err != nil {
		return nil, mapRedisError("query", err)
	}

	docs := make([]domain.Document, 0, len(paths))
	for i, cmd := range cmds {
		doc, ok, err := decodeHash(paths[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, doc)
		}
	}
	return applyQuery(docs, q), nil
}

// Subscribe implements domain.DocumentStore.
func (s *RedisStore) Subscribe(
	target domain.WatchTarget,
	onSnapshot func(domain.Snapshot),
	onError func(error),
) (func(), error) {
	return s.hub.subscribe(target, onSnapshot, onError)
}

// Ping implements domain.DocumentStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return mapRedisError("ping", err)
	}
	return nil
}

// Close stops the change listener and closes the client.
func (s *RedisStore) Close() error {
	s.cancel()
	<-s.done
	s.hub.close()
	return s.rdb.Close()
}

func (s *RedisStore) snapshot(ctx context.Context, target domain.WatchTarget) (domain.Snapshot, error) {
	return readSnapshot(ctx, target, s.Get, s.Query)
}

func (s *RedisStore) transact(
	ctx context.Context,
	op, key string,
	fn func(tx *redis.Tx, now int64) error,
) error {
	for i := 0; i < redisTxAttempts; i++ {
		now, err := s.serverTime(ctx)
		if err != nil {
			return err
		}
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error { return fn(tx, now) }, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return mapRedisError(op, err)
	}
	return domain.Errorf(domain.KindConnection, op, "write contention on %s", key)
}

func (s *RedisStore) write(
	ctx context.Context,
	tx *redis.Tx,
	path string,
	existing, incoming domain.Data,
	merge bool,
	now int64,
) error {
	body, err := resolveWrite(existing, incoming, merge, now)
	if err != nil {
		return err
	}
	raw, err := encodeBody(body)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.docKey(path), redisDataField, string(raw), redisUpdateField, now)
		p.SAdd(ctx, s.collectionKey(domain.ParentPath(path)), path)
		p.Publish(ctx, s.channel(), path)
		return nil
	})
	return err
}

// serverTime reads the Redis clock in Unix milliseconds, strictly increasing
// within this process.
func (s *RedisStore) serverTime(ctx context.Context) (int64, error) {
	t, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return 0, mapRedisError("time", err)
	}
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	ms := t.UnixMilli()
	if ms <= s.lastTS {
		ms = s.lastTS + 1
	}
	s.lastTS = ms
	return ms, nil
}

// listen forwards change notifications to the hub. Receive errors are
// reported to subscribers and retried with backoff; go-redis re-establishes
// the subscription on the next Receive.
func (s *RedisStore) listen(ctx context.Context, ps *redis.PubSub) {
	defer close(s.done)
	defer func() { _ = ps.Close() }()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	failing := false
	for {
		msg, err := ps.Receive(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			mapped := mapRedisError("receive", err)
			s.log.Warn().Err(err).Msg("change listener error")
			if !failing {
				s.hub.fail(mapped)
				failing = true
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}

		bo.Reset()
		switch m := msg.(type) {
		case *redis.Message:
			s.hub.notify(m.Payload)
		case *redis.Subscription:
			if failing {
				// Back after an outage; subscribers may have missed writes.
				s.log.Info().Msg("change listener resubscribed")
				s.hub.notifyAll()
				failing = false
			}
		}
	}
}

func decodeHash(path string, vals []any) (domain.Document, bool, error) {
	if len(vals) < 2 || vals[0] == nil {
		return domain.Document{}, false, nil
	}
	raw, ok := vals[0].(string)
	if !ok {
		return domain.Document{}, false, domain.Errorf(domain.KindInvalid, "decode document", "%s: unexpected %T", path, vals[0])
	}
	body, err := decodeBody([]byte(raw))
	if err != nil {
		return domain.Document{}, false, err
	}
	var ut int64
	if s, ok := vals[1].(string); ok {
		ut, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.Document{}, false, domain.NewError(domain.KindInvalid, "decode document", err)
		}
	}
	return domain.Document{Path: path, Data: body, UpdateTime: ut}, true, nil
}

// mapRedisError classifies client and server errors into the domain
// taxonomy.
func mapRedisError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, redis.Nil) {
		return domain.NewError(domain.KindNotFound, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, op, err)
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"):
		return domain.NewError(domain.KindAuthentication, op, err)
	case strings.HasPrefix(msg, "NOPERM"):
		return domain.NewError(domain.KindPermission, op, err)
	case strings.HasPrefix(msg, "LOADING"), strings.HasPrefix(msg, "READONLY"),
		strings.HasPrefix(msg, "MASTERDOWN"), strings.HasPrefix(msg, "CLUSTERDOWN"):
		return domain.NewError(domain.KindConnection, op, err)
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		return domain.NewError(domain.KindUnknown, op, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return domain.NewError(domain.KindTimeout, op, err)
	}
	if errors.As(err, &nerr) || errors.Is(err, io.EOF) || errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewError(domain.KindConnection, op, err)
	}
	return domain.NewError(domain.KindConnection, op, fmt.Errorf("redis: %w", err))
}
