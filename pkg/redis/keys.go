package redis

import "fmt"

// TableStatusKey 桌位预检快照键名。
func TableStatusKey(tableID uint) string {
	return fmt.Sprintf("menu_digital:table:status:%d", tableID)
}

// OrderRateLimitKey 下单限流键：scope 为 phone 或 ip。
func OrderRateLimitKey(scope, id string) string {
	return fmt.Sprintf("rate_limit:orders:%s:%s", scope, id)
}
