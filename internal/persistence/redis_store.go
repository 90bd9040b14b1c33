package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/pathways/pkg/api"
)

// RedisStore is a PathwayStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>:pw:<uuid>            => gob-encoded redisPathwayPayload
//	<prefix>:idx:all              => SET of all pathway uuids
//	<prefix>:idx:user:<id>        => SET of pathway uuids owned by a user
//	<prefix>:idx:group:<name>     => SET of pathway uuids owned by a group
//
// Owner indexes are moved on every update, and ListPathways re-checks the
// filter against the payload.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ PathwayStore = (*RedisStore)(nil)

type redisPathwayPayload struct {
	UUID           string
	OwnerUserID    *int64
	OwnerGroupName string
	Draft          []byte
	Published      []byte
	CreatedAt      int64
	UpdatedAt      int64
}

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "pathways:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "pathways:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyPathway(id string) string {
	return s.prefix + "pw:" + id
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyUser(id int64) string {
	return s.prefix + "idx:user:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) keyGroup(name string) string {
	return s.prefix + "idx:group:" + name
}

// ownerKeys returns the index sets the pathway belongs to besides idx:all.
func (s *RedisStore) ownerKeys(payload redisPathwayPayload) []string {
	var out []string
	if payload.OwnerUserID != nil {
		out = append(out, s.keyUser(*payload.OwnerUserID))
	}
	if payload.OwnerGroupName != "" {
		out = append(out, s.keyGroup(payload.OwnerGroupName))
	}
	return out
}

func encodeRedisPayload(p *api.Pathway) (redisPathwayPayload, []byte, error) {
	draft, err := EncodeData(p.Draft)
	if err != nil {
		return redisPathwayPayload{}, nil, err
	}
	published, err := EncodeData(p.Published)
	if err != nil {
		return redisPathwayPayload{}, nil, err
	}

	payload := redisPathwayPayload{
		UUID:           p.UUID.String(),
		OwnerUserID:    p.Owner.UserID,
		OwnerGroupName: p.Owner.GroupName,
		Draft:          draft,
		Published:      published,
		CreatedAt:      toUnixNano(p.CreatedAt),
		UpdatedAt:      toUnixNano(p.UpdatedAt),
	}
	data, err := encodeGob(payload)
	if err != nil {
		return redisPathwayPayload{}, nil, err
	}
	return payload, data, nil
}

func decodeRedisPayload(data []byte) (redisPathwayPayload, *api.Pathway, error) {
	if len(data) == 0 {
		return redisPathwayPayload{}, nil, ErrPathwayNotFound
	}
	payload, err := decodeGob[redisPathwayPayload](data)
	if err != nil {
		return redisPathwayPayload{}, nil, err
	}

	id, err := uuid.Parse(payload.UUID)
	if err != nil {
		return redisPathwayPayload{}, nil, fmt.Errorf("stored uuid %q: %w", payload.UUID, err)
	}
	draft, err := DecodeData(payload.Draft)
	if err != nil {
		return redisPathwayPayload{}, nil, err
	}
	published, err := DecodeData(payload.Published)
	if err != nil {
		return redisPathwayPayload{}, nil, err
	}

	p := &api.Pathway{
		UUID:      id,
		Owner:     api.Owner{GroupName: payload.OwnerGroupName},
		Draft:     draft,
		Published: published,
		CreatedAt: fromUnixNano(payload.CreatedAt),
		UpdatedAt: fromUnixNano(payload.UpdatedAt),
	}
	if payload.OwnerUserID != nil {
		uid := *payload.OwnerUserID
		p.Owner.UserID = &uid
	}
	return payload, p, nil
}

func (s *RedisStore) CreatePathway(ctx context.Context, p *api.Pathway) error {
	payload, data, err := encodeRedisPayload(p)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyPathway(payload.UUID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrPathwayExists
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), payload.UUID)
	for _, k := range s.ownerKeys(payload) {
		pipe.SAdd(ctx, k, payload.UUID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) UpdatePathway(ctx context.Context, p *api.Pathway) error {
	key := s.keyPathway(p.UUID.String())

	old, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrPathwayNotFound
		}
		return err
	}
	oldPayload, _, err := decodeRedisPayload(old)
	if err != nil {
		return err
	}

	payload, data, err := encodeRedisPayload(p)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrPathwayNotFound
	}

	pipe := s.client.TxPipeline()
	for _, k := range s.ownerKeys(oldPayload) {
		pipe.SRem(ctx, k, payload.UUID)
	}
	for _, k := range s.ownerKeys(payload) {
		pipe.SAdd(ctx, k, payload.UUID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error) {
	data, err := s.client.Get(ctx, s.keyPathway(id.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPathwayNotFound
		}
		return nil, err
	}
	_, p, err := decodeRedisPayload(data)
	return p, err
}

func (s *RedisStore) DeletePathway(ctx context.Context, id uuid.UUID) error {
	key := s.keyPathway(id.String())

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrPathwayNotFound
		}
		return err
	}
	payload, _, err := decodeRedisPayload(data)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, s.keyAll(), payload.UUID)
	for _, k := range s.ownerKeys(payload) {
		pipe.SRem(ctx, k, payload.UUID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListPathways(ctx context.Context, filter PathwayFilter) ([]*api.Pathway, error) {
	var ids []string
	var err error

	switch {
	case filter.OwnerUserID != nil && filter.OwnerGroupName != "":
		ids, err = s.client.SInter(ctx,
			s.keyUser(*filter.OwnerUserID),
			s.keyGroup(filter.OwnerGroupName),
		).Result()
	case filter.OwnerUserID != nil:
		ids, err = s.client.SMembers(ctx, s.keyUser(*filter.OwnerUserID)).Result()
	case filter.OwnerGroupName != "":
		ids, err = s.client.SMembers(ctx, s.keyGroup(filter.OwnerGroupName)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.Pathway{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.Pathway{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyPathway(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	result := []*api.Pathway{}
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		_, p, err := decodeRedisPayload(data)
		if err != nil {
			return nil, err
		}
		if filter.matches(p) {
			result = append(result, p)
		}
	}
	sortPathways(result)
	return result, nil
}

// RedisEventStore keeps each pathway's events in a Redis list:
//
//	<prefix>:events:<uuid> => LIST of JSON-encoded events
type RedisEventStore struct {
	client *redis.Client
	prefix string
}

var _ EventStore = (*RedisEventStore)(nil)

type redisEvent struct {
	At     int64  `json:"at"`
	Type   string `json:"type"`
	Actor  string `json:"actor,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func NewRedisEventStore(client *redis.Client, prefix string) *RedisEventStore {
	if prefix == "" {
		prefix = "pathways:"
	}
	return &RedisEventStore{client: client, prefix: prefix}
}

func (s *RedisEventStore) key(id uuid.UUID) string {
	return s.prefix + "events:" + id.String()
}

func (s *RedisEventStore) AppendEvent(ctx context.Context, ev api.PathwayEvent) error {
	ev = withTimestamp(ev)
	data, err := json.Marshal(redisEvent{
		At:     ev.At.UnixNano(),
		Type:   string(ev.Type),
		Actor:  ev.Actor,
		Detail: ev.Detail,
	})
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.key(ev.PathwayUUID), data).Err()
}

func (s *RedisEventStore) ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	raw, err := s.client.LRange(ctx, s.key(pathway), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out []api.PathwayEvent
	for _, item := range raw {
		var rec redisEvent
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, err
		}
		out = append(out, api.PathwayEvent{
			PathwayUUID: pathway,
			At:          fromUnixNano(rec.At),
			Type:        api.EventType(rec.Type),
			Actor:       rec.Actor,
			Detail:      rec.Detail,
		})
	}
	return out, nil
}
