package dto

import (
	"encoding/json"
	"time"
)

// ========== Itinerary 请求 DTO ==========

// CreateItemRequest 添加行程项请求
type CreateItemRequest struct {
	DayNumber      int      `json:"day_number"`
	Title          string   `json:"title"`
	Description    *string  `json:"description"`
	StartTime      *string  `json:"start_time"` // HH:MM 或 HH:MM:SS
	EndTime        *string  `json:"end_time"`
	Category       string   `json:"category"`
	PlaceID        *string  `json:"place_id"`
	PlaceName      *string  `json:"place_name"`
	PlaceAddress   *string  `json:"place_address"`
	PlaceLatitude  *float64 `json:"place_latitude"`
	PlaceLongitude *float64 `json:"place_longitude"`
	CostCents      *int64   `json:"cost_cents"`
	EstimatedCost  *float64 `json:"estimated_cost"` // 以元为单位，会换算成分
	Notes          *string  `json:"notes"`
}

// UpdateItemRequest 合并式更新，缺省字段保持不变
type UpdateItemRequest struct {
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	StartTime     *string  `json:"start_time"`
	EndTime       *string  `json:"end_time"`
	Category      *string  `json:"category"`
	CostCents     *int64   `json:"cost_cents"`
	EstimatedCost *float64 `json:"estimated_cost"`
	Notes         *string  `json:"notes"`
}

// ReorderMove 单个移动指令，sort_order 原样写入
type ReorderMove struct {
	ItemID    string `json:"id"`
	DayNumber int    `json:"day_number"`
	SortOrder int    `json:"sort_order"`
}

// ReorderRequest 批量移动请求
type ReorderRequest struct {
	Items []ReorderMove `json:"items"`
}

// GenerateRequest 生成行程请求
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ========== Itinerary 响应 DTO ==========

// PlaceView 地点
type PlaceView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Address  *string `json:"address,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// ItemView 行程项
type ItemView struct {
	ID             string          `json:"id"`
	DayID          string          `json:"day_id"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	Title          string          `json:"title"`
	Description    *string         `json:"description,omitempty"`
	StartTime      *string         `json:"start_time,omitempty"`
	EndTime        *string         `json:"end_time,omitempty"`
	SortOrder      int             `json:"sort_order"`
	CostCents      *int64          `json:"cost_cents,omitempty"`
	Explainability json.RawMessage `json:"explainability,omitempty"`
	Place          *PlaceView      `json:"place,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DayView 某一天的行程
type DayView struct {
	ID        string     `json:"id"`
	DayNumber int        `json:"day"`
	Date      string     `json:"date"` // YYYY-MM-DD
	Items     []ItemView `json:"items"`
}

// TripSummary 行程概要
type TripSummary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Destination string  `json:"destination"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
}

// ItineraryView 完整行程
type ItineraryView struct {
	Trip      TripSummary `json:"trip"`
	Itinerary []DayView   `json:"itinerary"`
}

// GenerateResult 生成结果
type GenerateResult struct {
	Items []ItemView `json:"items"`
	LogID string     `json:"log_id"`
}

// GenerationLogView 生成记录
type GenerationLogView struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	TripID       string          `json:"trip_id"`
	Context      json.RawMessage `json:"context"`
	Explanations json.RawMessage `json:"explanations"`
	CreatedAt    time.Time       `json:"created_at"`
}
