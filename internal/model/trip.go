package model

import (
	"time"

	"gorm.io/datatypes"
)

// 以下表由行程/成员/偏好/地点等外部模块维护，本服务只读或 create-or-fetch。

// TripRole 行程成员角色
type TripRole string

const (
	TripRoleOwner  TripRole = "OWNER"
	TripRoleEditor TripRole = "EDITOR"
	TripRoleViewer TripRole = "VIEWER"
)

// CanWrite 只有 OWNER 与 EDITOR 可以修改行程安排
func (r TripRole) CanWrite() bool {
	return r == TripRoleOwner || r == TripRoleEditor
}

// Trip 行程
type Trip struct {
	BaseModel
	OwnerID         int64      `gorm:"not null;index" json:"owner_id,string"`
	Title           string     `gorm:"type:varchar(200);not null" json:"title"`
	DestinationCity string     `gorm:"type:varchar(120);not null;default:''" json:"destination_city"`
	StartDate       *time.Time `gorm:"type:date" json:"start_date"`
	EndDate         *time.Time `gorm:"type:date" json:"end_date"`
}

func (Trip) TableName() string {
	return "trips"
}

// TripMember 行程成员
type TripMember struct {
	BaseModel
	TripID int64    `gorm:"not null;uniqueIndex:idx_trip_members_trip_user" json:"trip_id,string"`
	UserID int64    `gorm:"not null;uniqueIndex:idx_trip_members_trip_user;index" json:"user_id,string"`
	Role   TripRole `gorm:"type:varchar(16);not null;default:'VIEWER'" json:"role"`
}

func (TripMember) TableName() string {
	return "trip_members"
}

// UserPreferences 用户出行偏好，生成行程时作为快照写入 explainability
type UserPreferences struct {
	BaseModel
	UserID       int64          `gorm:"not null;uniqueIndex" json:"user_id,string"`
	TravelStyles datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"travel_styles"`
	Interests    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"interests"`
	BudgetMin    *int64         `json:"budget_min,omitempty"`
	BudgetMax    *int64         `json:"budget_max,omitempty"`
	HomeAirport  *string        `gorm:"type:varchar(8)" json:"home_airport,omitempty"`
	Languages    datatypes.JSON `gorm:"type:jsonb;not null;default:'[\"en\"]'" json:"languages"`
}

func (UserPreferences) TableName() string {
	return "user_preferences"
}

// Place 地点
type Place struct {
	BaseModel
	Name     string  `gorm:"type:varchar(200);not null;uniqueIndex:idx_places_lookup,priority:1" json:"name"`
	Category string  `gorm:"type:varchar(32);not null;default:'ACTIVITY'" json:"category"`
	Address  *string `gorm:"type:varchar(300)" json:"address,omitempty"`
	Lat      float64 `gorm:"not null;uniqueIndex:idx_places_lookup,priority:2" json:"lat"`
	Lng      float64 `gorm:"not null;uniqueIndex:idx_places_lookup,priority:3" json:"lng"`
}

func (Place) TableName() string {
	return "places"
}
