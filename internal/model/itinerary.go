package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ItemType 行程项内部类型
type ItemType string

const (
	ItemTypeActivity   ItemType = "ACTIVITY"
	ItemTypeHotel      ItemType = "HOTEL"
	ItemTypeTransport  ItemType = "TRANSPORT"
	ItemTypeRestaurant ItemType = "RESTAURANT"
	ItemTypeFreeTime   ItemType = "FREE_TIME"
)

// DefaultItemType 未登记的 category 一律落到该类型
const DefaultItemType = ItemTypeActivity

// categoryTypes 前端 category 到内部类型的映射表
var categoryTypes = map[string]ItemType{
	"ACTIVITY":       ItemTypeActivity,
	"ACCOMMODATION":  ItemTypeHotel,
	"TRANSPORTATION": ItemTypeTransport,
	"RESTAURANT":     ItemTypeRestaurant,
	"SHOPPING":       ItemTypeActivity,
	"OTHER":          ItemTypeFreeTime,
}

// TypeForCategory 查表得到类型，映射是全函数，不会报错
func TypeForCategory(category string) ItemType {
	if t, ok := categoryTypes[strings.ToUpper(strings.TrimSpace(category))]; ok {
		return t
	}
	return DefaultItemType
}

// ItineraryDay 行程中的某一天，(trip_id, day_number) 唯一
type ItineraryDay struct {
	BaseModel
	TripID    int64     `gorm:"not null;uniqueIndex:idx_itinerary_days_trip_day,priority:1" json:"trip_id,string"`
	DayNumber int       `gorm:"not null;uniqueIndex:idx_itinerary_days_trip_day,priority:2" json:"day_number"`
	Date      time.Time `gorm:"type:date;not null" json:"date"`

	Trip *Trip `gorm:"foreignKey:TripID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ItineraryDay) TableName() string {
	return "itinerary_days"
}

// ItineraryItem 行程项，sort_order 决定同一天内的展示顺序，允许空洞与重复
type ItineraryItem struct {
	BaseModel
	DayID          int64           `gorm:"not null;index:idx_itinerary_items_day_order,priority:1" json:"day_id,string"`
	Type           ItemType        `gorm:"type:varchar(16);not null" json:"type"`
	Category       string          `gorm:"type:varchar(32);not null;default:''" json:"category"`
	Title          string          `gorm:"type:varchar(200);not null" json:"title"`
	Description    *string         `gorm:"type:text" json:"description,omitempty"`
	StartTime      *datatypes.Time `gorm:"type:time" json:"start_time,omitempty"`
	EndTime        *datatypes.Time `gorm:"type:time" json:"end_time,omitempty"`
	PlaceID        *int64          `gorm:"index" json:"place_id,omitempty"`
	SortOrder      int             `gorm:"not null;index:idx_itinerary_items_day_order,priority:2" json:"sort_order"`
	CostCents      *int64          `json:"cost_cents,omitempty"`
	Explainability datatypes.JSON  `gorm:"type:jsonb" json:"explainability,omitempty"`

	Day   *ItineraryDay `gorm:"foreignKey:DayID;constraint:OnDelete:CASCADE" json:"-"`
	Place *Place        `gorm:"foreignKey:PlaceID;constraint:OnDelete:SET NULL" json:"-"`
}

func (ItineraryItem) TableName() string {
	return "itinerary_items"
}

// GenerationLog 每次生成调用写一条，explanations 与生成的行程项一一对应
type GenerationLog struct {
	BaseModel
	UserID       int64          `gorm:"not null;index" json:"user_id,string"`
	TripID       int64          `gorm:"not null;index" json:"trip_id,string"`
	Context      datatypes.JSON `gorm:"type:jsonb;not null" json:"context"`
	Explanations datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"explanations"`
}

func (GenerationLog) TableName() string {
	return "generation_logs"
}

// Explanation 生成行程项附带的解释
type Explanation struct {
	Reason      string          `json:"reason"`
	Prompt      string          `json:"prompt"`
	Preferences json.RawMessage `json:"preferences"`
}

// GenerationContext 生成调用的上下文快照
type GenerationContext struct {
	Prompt      string          `json:"prompt"`
	Preferences json.RawMessage `json:"preferences"`
	Days        int             `json:"days"`
}

// ItemNotes 手动添加行程项时的备注
type ItemNotes struct {
	Notes string `json:"notes"`
}
