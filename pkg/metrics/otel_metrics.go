package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 行程编排相关指标
	ItineraryOperationTotal    metric.Int64Counter
	ItineraryOperationDuration metric.Float64Histogram
	ItineraryItemsCreatedTotal metric.Int64Counter
	ItineraryMovesTotal        metric.Int64Counter
	ItineraryCacheLookupTotal  metric.Int64Counter
	ItineraryEventsTotal       metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("tripmate")
)

// InitMetrics 初始化 OpenTelemetry 指标，需在 MeterProvider 设置之后调用
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}
	meter = otel.Meter("tripmate")

	m.ItineraryOperationTotal, err = meter.Int64Counter(
		"itinerary_operations_total",
		metric.WithDescription("Total number of itinerary operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return err
	}

	m.ItineraryOperationDuration, err = meter.Float64Histogram(
		"itinerary_operation_duration_seconds",
		metric.WithDescription("Time spent in itinerary operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.ItineraryItemsCreatedTotal, err = meter.Int64Counter(
		"itinerary_items_created_total",
		metric.WithDescription("Total number of itinerary items created"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return err
	}

	m.ItineraryMovesTotal, err = meter.Int64Counter(
		"itinerary_moves_total",
		metric.WithDescription("Total number of itinerary item moves applied"),
		metric.WithUnit("{move}"),
	)
	if err != nil {
		return err
	}

	m.ItineraryCacheLookupTotal, err = meter.Int64Counter(
		"itinerary_cache_lookups_total",
		metric.WithDescription("Total number of itinerary cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	m.ItineraryEventsTotal, err = meter.Int64Counter(
		"itinerary_events_total",
		metric.WithDescription("Total number of itinerary change events published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordOperation 记录一次行程操作及其结果
func (m *OTelMetrics) RecordOperation(ctx context.Context, operation, outcome string, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.ItineraryOperationTotal.Add(ctx, 1, attrs)
	m.ItineraryOperationDuration.Record(ctx, duration, attrs)
}

// RecordItemsCreated 记录新建行程项，source 为 manual 或 generated
func (m *OTelMetrics) RecordItemsCreated(ctx context.Context, source string, count int64) {
	m.ItineraryItemsCreatedTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordMoves 记录批量移动的条数
func (m *OTelMetrics) RecordMoves(ctx context.Context, count int64) {
	m.ItineraryMovesTotal.Add(ctx, count)
}

// RecordCacheLookup 记录缓存命中情况
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ItineraryCacheLookupTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordEvent 记录事件发布结果
func (m *OTelMetrics) RecordEvent(ctx context.Context, eventType string, ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	m.ItineraryEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	))
}
