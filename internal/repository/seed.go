package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"TripMate/internal/model"
)

// 演示数据使用固定 id，便于本地联调时直接拼 URL
const (
	DemoTripID   int64 = 1_000_001
	DemoOwnerID  int64 = 1
	DemoEditorID int64 = 2
	DemoViewerID int64 = 3
)

// DemoData 本地联调用的一组行程/成员/偏好/地点
type DemoData struct {
	Trips       []model.Trip
	Members     []model.TripMember
	Preferences []model.UserPreferences
	Places      []model.Place
}

func NewDemoData() DemoData {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	airport := "KIX"

	return DemoData{
		Trips: []model.Trip{{
			BaseModel:       model.BaseModel{ID: DemoTripID},
			OwnerID:         DemoOwnerID,
			Title:           "Kyoto in June",
			DestinationCity: "Kyoto",
			StartDate:       &start,
			EndDate:         &end,
		}},
		Members: []model.TripMember{
			{BaseModel: model.BaseModel{ID: DemoTripID + 1}, TripID: DemoTripID, UserID: DemoOwnerID, Role: model.TripRoleOwner},
			{BaseModel: model.BaseModel{ID: DemoTripID + 2}, TripID: DemoTripID, UserID: DemoEditorID, Role: model.TripRoleEditor},
			{BaseModel: model.BaseModel{ID: DemoTripID + 3}, TripID: DemoTripID, UserID: DemoViewerID, Role: model.TripRoleViewer},
		},
		Preferences: []model.UserPreferences{{
			BaseModel:    model.BaseModel{ID: DemoTripID + 10},
			UserID:       DemoOwnerID,
			TravelStyles: datatypes.JSON(`["slow","cultural"]`),
			Interests:    datatypes.JSON(`["temples","food"]`),
			HomeAirport:  &airport,
			Languages:    datatypes.JSON(`["en","ja"]`),
		}},
		Places: []model.Place{{
			BaseModel: model.BaseModel{ID: DemoTripID + 20},
			Name:      "Fushimi Inari Taisha",
			Category:  "ACTIVITY",
			Lat:       34.9671,
			Lng:       135.7727,
		}},
	}
}

// SeedMemory 写入内存存储
func SeedMemory(store *MemoryStore, data DemoData) {
	for _, t := range data.Trips {
		store.PutTrip(t)
	}
	for _, m := range data.Members {
		store.PutMember(m)
	}
	for _, p := range data.Preferences {
		store.PutPreferences(p)
	}
	for _, p := range data.Places {
		store.PutPlace(p)
	}
}

// SeedDatabase 已存在的行跳过，可重复执行
func SeedDatabase(ctx context.Context, db *gorm.DB, data DemoData) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{DoNothing: true})

		if len(data.Trips) > 0 {
			if err := insert.Create(&data.Trips).Error; err != nil {
				return fmt.Errorf("failed to seed trips: %w", err)
			}
		}
		if len(data.Members) > 0 {
			if err := insert.Create(&data.Members).Error; err != nil {
				return fmt.Errorf("failed to seed trip members: %w", err)
			}
		}
		if len(data.Preferences) > 0 {
			if err := insert.Create(&data.Preferences).Error; err != nil {
				return fmt.Errorf("failed to seed preferences: %w", err)
			}
		}
		if len(data.Places) > 0 {
			if err := insert.Create(&data.Places).Error; err != nil {
				return fmt.Errorf("failed to seed places: %w", err)
			}
		}
		return nil
	})
}
