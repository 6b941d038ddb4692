package metrics

import (
	"context"
	"time"
)

// 以下包级函数在指标未初始化时直接忽略，便于测试与未开启遥测的部署

// ObserveOperation 返回结束时调用的记录函数
func ObserveOperation(ctx context.Context, operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		m := GetMetrics()
		if m == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		m.RecordOperation(ctx, operation, outcome, time.Since(start).Seconds())
	}
}

// RecordItemsCreated 记录新建行程项
func RecordItemsCreated(ctx context.Context, source string, count int) {
	if m := GetMetrics(); m != nil {
		m.RecordItemsCreated(ctx, source, int64(count))
	}
}

// RecordMoves 记录批量移动条数
func RecordMoves(ctx context.Context, count int) {
	if m := GetMetrics(); m != nil {
		m.RecordMoves(ctx, int64(count))
	}
}

// RecordCacheLookup 记录缓存命中
func RecordCacheLookup(ctx context.Context, hit bool) {
	if m := GetMetrics(); m != nil {
		m.RecordCacheLookup(ctx, hit)
	}
}

// RecordEvent 记录事件发布
func RecordEvent(ctx context.Context, eventType string, ok bool) {
	if m := GetMetrics(); m != nil {
		m.RecordEvent(ctx, eventType, ok)
	}
}
