package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "attn"
)

// Ключи состояния
const (
	// RedisKeyPersons — hash person_id -> name (L2 реестра лиц)
	RedisKeyPersons = RedisNamespace + ":persons:known"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanPersons — регистрация/удаление лица, формат "person_id:name" или "person_id:-"
	RedisChanPersons = RedisNamespace + ":persons:signal"
	// RedisChanAttendance — сигнал о новой записи в ledger, формат "instance_id:person_id:date"
	RedisChanAttendance = RedisNamespace + ":attendance:appended"
)

// ReconcileLockKey — ключ блокировки, под которой один инстанс сверяет L2 с БД
func ReconcileLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:reconcile:%s", RedisNamespace, resource)
}
