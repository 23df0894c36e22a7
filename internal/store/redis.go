package store

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"restructure-engine/internal/model"
)

const (
	planKeyPrefix  = "protection:plan:"
	stateKeyPrefix = "protection:state:"
)

// savePlanScript stores a plan only when its version matches and moves the
// contract between the per-state index sets.
// KEYS[1] = plan hash key
// ARGV[1] = expected version
// ARGV[2] = encoded plan
// ARGV[3] = new state
// ARGV[4] = contract id
// ARGV[5] = state set prefix
var savePlanScript = redis.NewScript(`
local key = KEYS[1]
local expected = tonumber(ARGV[1])

local cur = redis.call("HMGET", key, "version", "state")
local version = tonumber(cur[1]) or 0
if version ~= expected then
    return -1
end

if cur[2] then
    redis.call("SREM", ARGV[5] .. cur[2], ARGV[4])
end
redis.call("HSET", key, "version", version + 1, "state", ARGV[3], "data", ARGV[2])
redis.call("SADD", ARGV[5] .. ARGV[3], ARGV[4])
return version + 1
`)

// Redis implements Plans on Redis. Each plan is a hash holding version,
// state and the JSON document; a set per state indexes contracts.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping checks connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) Get(ctx context.Context, contractID string) (*model.Plan, error) {
	vals, err := s.client.HMGet(ctx, planKeyPrefix+contractID, "data", "version").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", contractID, err)
	}
	if vals[0] == nil {
		return nil, fmt.Errorf("plan %s: %w", contractID, ErrNotFound)
	}
	return decodeRedisPlan(contractID, vals[0], vals[1])
}

func (s *Redis) Save(ctx context.Context, plan *model.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", plan.ContractID, err)
	}

	res, err := savePlanScript.Run(ctx, s.client,
		[]string{planKeyPrefix + plan.ContractID},
		plan.Version, string(data), string(plan.State), plan.ContractID, stateKeyPrefix,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to persist plan %s: %w", plan.ContractID, err)
	}
	if res < 0 {
		return fmt.Errorf("plan %s at version %d: %w", plan.ContractID, plan.Version, ErrVersionConflict)
	}
	plan.Version = res
	return nil
}

func (s *Redis) ListByState(ctx context.Context, states ...model.State) ([]*model.Plan, error) {
	var out []*model.Plan
	for _, st := range states {
		ids, err := s.client.SMembers(ctx, stateKeyPrefix+string(st)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list %s plans: %w", st, err)
		}
		for _, id := range ids {
			p, err := s.Get(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			// The index can lag a concurrent save.
			if p.State == st {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func decodeRedisPlan(contractID string, data, version interface{}) (*model.Plan, error) {
	raw, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("plan %s: unexpected data type %T", contractID, data)
	}
	var p model.Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", contractID, err)
	}
	if v, ok := version.(string); ok {
		if _, err := fmt.Sscan(v, &p.Version); err != nil {
			return nil, fmt.Errorf("plan %s: bad version %q", contractID, v)
		}
	}
	return &p, nil
}
