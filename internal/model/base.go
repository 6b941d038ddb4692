package model

import (
	"time"

	"gorm.io/gorm"

	"TripMate/pkg/snowflake"
)

// BaseModel 使用 snowflake 生成的主键，行程数据均为硬删除。
type BaseModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

// BeforeCreate 未指定主键时分配 snowflake ID
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID != 0 {
		return nil
	}

	id, err := snowflake.NextID()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}
