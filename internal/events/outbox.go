package events

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把生命周期事件写入 Redis Stream，由 Relay 异步转发 Kafka。
// 发布方只依赖本地 Redis 的一次 XADD，Kafka 抖动不影响请求路径。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// Publish 将事件追加进 outbox stream。
func (o *Outbox) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: streamValues(ev),
	}).Err()
}

func streamValues(ev Event) map[string]interface{} {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return map[string]interface{}{
		"type":         ev.Type,
		"order_id":     strconv.FormatUint(uint64(ev.OrderID), 10),
		"code":         ev.Code,
		"table_number": ev.TableNumber,
		"total":        strconv.FormatInt(ev.Total, 10),
		"status":       ev.Status,
		"occurred_at":  occurred.UTC().Format(time.RFC3339Nano),
	}
}
