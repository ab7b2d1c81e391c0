// Package metrics 提供 syntagma 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "syntagma"

// HTTP 请求指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// 迁移与备份指标
var (
	// MigrationsAppliedTotal 已执行迁移数
	MigrationsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_applied_total",
			Help:      "已执行的迁移脚本数",
		},
	)

	// MigrationFailuresTotal 迁移失败次数
	MigrationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_failures_total",
			Help:      "迁移失败次数",
		},
		[]string{"operation"}, // up, rollback
	)

	// BackupsTotal 备份次数
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "数据库备份次数",
		},
		[]string{"trigger", "result"}, // trigger: manual/scheduled, result: success/failed
	)
)

// 规则集与审计指标
var (
	// RulesetOperationsTotal 规则集写操作总数
	RulesetOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ruleset_operations_total",
			Help:      "规则集写操作总数",
		},
		[]string{"action"}, // created, updated, deleted
	)

	// RulesetVersionConflictsTotal 版本号冲突次数
	RulesetVersionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ruleset_version_conflicts_total",
			Help:      "规则集版本号并发冲突次数",
		},
	)

	// AuditWriteFailuresTotal 审计写入失败次数
	AuditWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "审计日志写入失败次数",
		},
		[]string{"action"},
	)

	// CacheRequestsTotal 缓存访问次数
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "规则集缓存访问次数",
		},
		[]string{"result"}, // hit, miss, error
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordMigrationsApplied 记录执行的迁移数
func RecordMigrationsApplied(n int) {
	MigrationsAppliedTotal.Add(float64(n))
}

// RecordMigrationFailure 记录迁移失败
func RecordMigrationFailure(operation string) {
	MigrationFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordBackup 记录备份结果
func RecordBackup(trigger string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	BackupsTotal.WithLabelValues(trigger, result).Inc()
}

// RecordRulesetOperation 记录规则集写操作
func RecordRulesetOperation(action string) {
	RulesetOperationsTotal.WithLabelValues(action).Inc()
}

// RecordVersionConflict 记录版本号冲突
func RecordVersionConflict() {
	RulesetVersionConflictsTotal.Inc()
}

// RecordAuditWriteFailure 记录审计写入失败
func RecordAuditWriteFailure(action string) {
	AuditWriteFailuresTotal.WithLabelValues(action).Inc()
}

// RecordCacheRequest 记录缓存访问
func RecordCacheRequest(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}
