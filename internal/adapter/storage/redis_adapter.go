package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

var (
	_ port.Ledger          = (*RedisLedger)(nil)
	_ port.TransactionLog  = (*RedisLedger)(nil)
	_ port.LocationCatalog = (*RedisLedger)(nil)
)

const (
	recordKeyPrefix = "inv:rec:"
	recordsIndexKey = "inv:records"
	recordSeqKey    = "inv:seq"
	txAllKey        = "inv:tx"
	txPartPrefix    = "inv:tx:part:"
	txUserPrefix    = "inv:tx:user:"
	txIDsKey        = "inv:tx:ids"
	locationsKey    = "inv:locations"
)

// Script results shared by the mutation scripts.
const (
	scriptOverflow     = -3
	scriptDuplicate    = -2
	scriptNotFound     = -1
	scriptInsufficient = 0
	scriptOK           = 1
)

// appendTx is spliced into every mutation script. KEYS[k..k+2] are the
// transaction indexes and KEYS[k+3] the set of recorded ids. ARGV[a] is the
// JSON row, ARGV[a+1] its score and ARGV[a+2] its id.
const appendTx = `
local max_quantity = 2147483647

local function seen_tx(k, a)
	return redis.call('SISMEMBER', KEYS[k + 3], ARGV[a + 2]) == 1
end

local function append_tx(k, a)
	redis.call('ZADD', KEYS[k], ARGV[a + 1], ARGV[a])
	redis.call('ZADD', KEYS[k + 1], ARGV[a + 1], ARGV[a])
	redis.call('ZADD', KEYS[k + 2], ARGV[a + 1], ARGV[a])
	redis.call('SADD', KEYS[k + 3], ARGV[a + 2])
end
`

// KEYS: src, dst, records index, seq, tx all, tx part, tx user, tx ids
// ARGV: quantity, now, dst part, dst operation, dst location, tx json, tx score, tx id
var transferScript = redis.NewScript(appendTx + `
local quantity = tonumber(ARGV[1])

if seen_tx(5, 6) then
	return -2
end
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end

local current = tonumber(redis.call('HGET', KEYS[1], 'quantity'))
if current < quantity then
	return 0
end
local dest = tonumber(redis.call('HGET', KEYS[2], 'quantity') or '0')
if dest > max_quantity - quantity then
	return -3
end

redis.call('HINCRBY', KEYS[1], 'quantity', -quantity)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])

if redis.call('EXISTS', KEYS[2]) == 0 then
	local seq = redis.call('INCR', KEYS[4])
	redis.call('HSET', KEYS[2],
		'part_id', ARGV[3], 'operation', ARGV[4], 'location', ARGV[5], 'quantity', 0,
		'item_type', redis.call('HGET', KEYS[1], 'item_type') or '',
		'batch_number', redis.call('HGET', KEYS[1], 'batch_number') or '',
		'created_at', ARGV[2])
	redis.call('ZADD', KEYS[3], seq, KEYS[2])
end
redis.call('HINCRBY', KEYS[2], 'quantity', quantity)
redis.call('HSET', KEYS[2], 'updated_at', ARGV[2])

append_tx(5, 6)
return 1
`)

// KEYS: rec, records index, seq, tx all, tx part, tx user, tx ids
// ARGV: quantity, now, part, operation, location, item type, batch, tx json, tx score, tx id
var addScript = redis.NewScript(appendTx + `
local quantity = tonumber(ARGV[1])

if seen_tx(4, 8) then
	return -2
end
local current = tonumber(redis.call('HGET', KEYS[1], 'quantity') or '0')
if quantity < 0 or current > max_quantity - quantity then
	return -3
end

if redis.call('EXISTS', KEYS[1]) == 0 then
	local seq = redis.call('INCR', KEYS[3])
	redis.call('HSET', KEYS[1],
		'part_id', ARGV[3], 'operation', ARGV[4], 'location', ARGV[5], 'quantity', 0,
		'item_type', ARGV[6], 'batch_number', ARGV[7], 'created_at', ARGV[2])
	redis.call('ZADD', KEYS[2], seq, KEYS[1])
end
redis.call('HINCRBY', KEYS[1], 'quantity', quantity)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])

append_tx(4, 8)
return 1
`)

// KEYS: rec, tx all, tx part, tx user, tx ids
// ARGV: quantity, now, tx json, tx score, tx id
var removeScript = redis.NewScript(appendTx + `
local quantity = tonumber(ARGV[1])

if seen_tx(2, 3) then
	return -2
end
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end

local current = tonumber(redis.call('HGET', KEYS[1], 'quantity'))
if current < quantity then
	return 0
end

redis.call('HINCRBY', KEYS[1], 'quantity', -quantity)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])

append_tx(2, 3)
return 1
`)

// RedisLedger keeps each record in a hash and every transaction row in sorted
// sets scored by creation time. Lua scripts make each mutation atomic.
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, now: time.Now}
}

func recordKey(key domain.Key) string {
	return recordKeyPrefix + key.PartID + ":" + key.Operation + ":" + key.Location
}

func (r *RedisLedger) Get(ctx context.Context, key domain.Key) (domain.InventoryRecord, error) {
	fields, err := r.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	return parseRecord(fields)
}

func (r *RedisLedger) Search(ctx context.Context, partID, operation string) ([]domain.InventoryRecord, error) {
	keys, err := r.client.ZRange(ctx, recordsIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
	}

	result := make([]domain.InventoryRecord, 0)
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, err
		}
		if partID != "" && rec.PartID != partID {
			continue
		}
		if operation != "" && rec.Operation != operation {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func (r *RedisLedger) Transfer(ctx context.Context, src, dst domain.Key, quantity int, tx domain.Transaction) error {
	body, score, err := encodeTx(tx)
	if err != nil {
		return err
	}

	keys := []string{recordKey(src), recordKey(dst), recordsIndexKey, recordSeqKey,
		txAllKey, txPartPrefix + tx.PartID, txUserPrefix + tx.User, txIDsKey}
	res, err := transferScript.Run(ctx, r.client, keys,
		quantity, r.stamp(), dst.PartID, dst.Operation, dst.Location, body, score, tx.ID).Int()
	if err != nil {
		return fmt.Errorf("transfer script: %w", err)
	}
	return scriptResult(res)
}

func (r *RedisLedger) Add(ctx context.Context, rec domain.InventoryRecord, tx domain.Transaction) error {
	body, score, err := encodeTx(tx)
	if err != nil {
		return err
	}

	keys := []string{recordKey(rec.Key()), recordsIndexKey, recordSeqKey,
		txAllKey, txPartPrefix + tx.PartID, txUserPrefix + tx.User, txIDsKey}
	res, err := addScript.Run(ctx, r.client, keys,
		rec.Quantity, r.stamp(), rec.PartID, rec.Operation, rec.Location, rec.ItemType, rec.BatchNumber, body, score, tx.ID).Int()
	if err != nil {
		return fmt.Errorf("add script: %w", err)
	}
	return scriptResult(res)
}

func (r *RedisLedger) Remove(ctx context.Context, key domain.Key, quantity int, tx domain.Transaction) error {
	body, score, err := encodeTx(tx)
	if err != nil {
		return err
	}

	keys := []string{recordKey(key), txAllKey, txPartPrefix + tx.PartID, txUserPrefix + tx.User, txIDsKey}
	res, err := removeScript.Run(ctx, r.client, keys, quantity, r.stamp(), body, score, tx.ID).Int()
	if err != nil {
		return fmt.Errorf("remove script: %w", err)
	}
	return scriptResult(res)
}

func (r *RedisLedger) TransactionsByPart(ctx context.Context, partID string, limit int) ([]domain.Transaction, error) {
	return r.newest(ctx, txPartPrefix+partID, limit)
}

func (r *RedisLedger) TransactionsByUser(ctx context.Context, user string, limit int) ([]domain.Transaction, error) {
	return r.newest(ctx, txUserPrefix+user, limit)
}

func (r *RedisLedger) TransactionsInRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	members, err := r.client.ZRangeByScore(ctx, txAllKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMicro(), 10),
		Max: "(" + strconv.FormatInt(to.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range transactions: %w", err)
	}
	return decodeTxs(members)
}

// Locations returns the list stored under inv:locations.
func (r *RedisLedger) Locations(ctx context.Context) ([]string, error) {
	codes, err := r.client.LRange(ctx, locationsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	return codes, nil
}

// SetLocations replaces the stored location list.
func (r *RedisLedger) SetLocations(ctx context.Context, codes []string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, locationsKey)
	if len(codes) > 0 {
		args := make([]any, len(codes))
		for i, c := range codes {
			args[i] = c
		}
		pipe.RPush(ctx, locationsKey, args...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisLedger) newest(ctx context.Context, key string, limit int) ([]domain.Transaction, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := r.client.ZRevRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return decodeTxs(members)
}

func (r *RedisLedger) stamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func scriptResult(res int) error {
	switch res {
	case scriptOK:
		return nil
	case scriptInsufficient:
		return domain.ErrInsufficientQuantity
	case scriptNotFound:
		return domain.ErrNotFound
	case scriptDuplicate:
		return domain.ErrDuplicateTransaction
	case scriptOverflow:
		return domain.ErrQuantityOverflow
	default:
		return fmt.Errorf("unexpected script result %d", res)
	}
}

func parseRecord(fields map[string]string) (domain.InventoryRecord, error) {
	qty, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("parse quantity %q: %w", fields["quantity"], err)
	}
	created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updated, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return domain.InventoryRecord{
		PartID:      fields["part_id"],
		Operation:   fields["operation"],
		Location:    fields["location"],
		Quantity:    qty,
		ItemType:    fields["item_type"],
		BatchNumber: fields["batch_number"],
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

type redisTx struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	PartID    string    `json:"part_id"`
	Operation string    `json:"operation"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Quantity  int       `json:"quantity"`
	User      string    `json:"user"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func encodeTx(tx domain.Transaction) (string, int64, error) {
	body, err := json.Marshal(redisTx{
		ID:        tx.ID,
		Type:      string(tx.Type),
		PartID:    tx.PartID,
		Operation: tx.Operation,
		From:      tx.FromLocation,
		To:        tx.ToLocation,
		Quantity:  tx.Quantity,
		User:      tx.User,
		Notes:     tx.Notes,
		CreatedAt: tx.CreatedAt.UTC(),
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode transaction: %w", err)
	}
	return string(body), tx.CreatedAt.UnixMicro(), nil
}

func decodeTxs(members []string) ([]domain.Transaction, error) {
	result := make([]domain.Transaction, 0, len(members))
	for _, m := range members {
		var rt redisTx
		if err := json.Unmarshal([]byte(m), &rt); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		result = append(result, domain.Transaction{
			ID:           rt.ID,
			Type:         domain.TransactionType(rt.Type),
			PartID:       rt.PartID,
			Operation:    rt.Operation,
			FromLocation: rt.From,
			ToLocation:   rt.To,
			Quantity:     rt.Quantity,
			User:         rt.User,
			Notes:        rt.Notes,
			CreatedAt:    rt.CreatedAt,
		})
	}
	return result, nil
}
