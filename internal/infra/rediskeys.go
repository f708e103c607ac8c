package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "corpsim"
)

// Ключи для Sets (состояние)
const (
	RedisKeyHaltedRuns = RedisNamespace + ":runs:halted_set"
	RedisKeyLockHalted = RedisNamespace + ":lock:warmup:halted"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions — канал для трансляции решений оператора (HITL).
	RedisChanApprovalDecisions = RedisNamespace + ":approvals"
	// RedisChanApprovalResolution — префикс канала с итогом по конкретной заявке.
	RedisChanApprovalResolution = RedisChanApprovalDecisions + ":resolution:"
	// RedisChanRunHalt — сигналы halt/resume прогонов, формат "run_id:on|off".
	RedisChanRunHalt = RedisNamespace + ":runs:halt-signal"
)
