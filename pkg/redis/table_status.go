package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// TableStatusSnapshot 桌位占用状态的短 TTL 快照，给高频预检接口挡读。
// 快照只是提示：真正的占用判定永远在建单事务的行锁里重做，
// 预检到空桌但下单撞 409 是预期内的竞态。
type TableStatusSnapshot struct {
	Exists      bool
	TableNumber string
	Occupied    bool
	OrderCode   string
	OrderStatus string
}

// GetTableStatus 查询桌位快照。found=false 表示缓存未命中。
func GetTableStatus(ctx context.Context, rdb *rd.Client, tableID uint) (TableStatusSnapshot, bool, error) {
	key := TableStatusKey(tableID)
	m, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return TableStatusSnapshot{}, false, err
	}
	if len(m) == 0 {
		return TableStatusSnapshot{}, false, nil
	}

	return TableStatusSnapshot{
		Exists:      m["exists"] == "1",
		TableNumber: m["table_number"],
		Occupied:    m["occupied"] == "1",
		OrderCode:   m["order_code"],
		OrderStatus: m["order_status"],
	}, true, nil
}

// PutTableStatus 写入快照并刷新 TTL。
func PutTableStatus(ctx context.Context, rdb *rd.Client, tableID uint, snap TableStatusSnapshot, ttl time.Duration) error {
	key := TableStatusKey(tableID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"exists", boolFlag(snap.Exists),
		"table_number", snap.TableNumber,
		"occupied", boolFlag(snap.Occupied),
		"order_code", snap.OrderCode,
		"order_status", snap.OrderStatus,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DropTableStatus 主动失效快照（桌位占用状态刚变更时调用）。
func DropTableStatus(ctx context.Context, rdb *rd.Client, tableID uint) error {
	return rdb.Del(ctx, TableStatusKey(tableID)).Err()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
