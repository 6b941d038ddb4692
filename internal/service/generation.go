package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"TripMate/internal/model"
	"TripMate/internal/repository"
	pkgerrors "TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/utils"
)

// Generator 根据提示词与用户偏好生成多日行程骨架。
// 每次调用都会追加一整套新的行程项，不会替换之前生成的内容。
// 生成项的 sortOrder 接在当天已有项之后，不按每天从 1 固定编号。
type Generator struct {
	slots []SlotTemplate
}

func NewGenerator(slots []SlotTemplate) *Generator {
	return &Generator{slots: slots}
}

// GenerationOutcome 一次生成调用的结果，Items 与 Log.Explanations 一一对应
type GenerationOutcome struct {
	Items []*model.ItineraryItem
	Log   *model.GenerationLog
}

// preferenceSnapshot 写入 explainability 与生成日志的偏好快照
type preferenceSnapshot struct {
	TravelStyles json.RawMessage `json:"travel_styles"`
	Interests    json.RawMessage `json:"interests"`
	BudgetMin    *int64          `json:"budget_min"`
	BudgetMax    *int64          `json:"budget_max"`
	HomeAirport  *string         `json:"home_airport"`
	Languages    json.RawMessage `json:"languages"`
}

// Generate 整个骨架与生成日志在同一个事务内写入
func (g *Generator) Generate(ctx context.Context, store repository.Store, tripID, userID int64, prompt string) (*GenerationOutcome, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, pkgerrors.Validation("prompt", "Prompt is required")
	}

	var outcome *GenerationOutcome
	err := store.Transaction(ctx, func(tx repository.Store) error {
		trip, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}

		prefs, err := loadPreferenceSnapshot(ctx, tx, userID)
		if err != nil {
			return err
		}

		days := utils.TripDays(trip.StartDate, trip.EndDate)
		items := make([]*model.ItineraryItem, 0, days*len(g.slots))
		explanations := make([]model.Explanation, 0, days*len(g.slots))

		for dayNumber := 1; dayNumber <= days; dayNumber++ {
			day, err := resolveTripDay(ctx, tx, trip, dayNumber)
			if err != nil {
				return err
			}

			for _, slot := range g.slots {
				explanation := model.Explanation{
					Reason:      generationReason(slot.Type(), prefs),
					Prompt:      prompt,
					Preferences: prefs,
				}
				payload, err := json.Marshal(explanation)
				if err != nil {
					return fmt.Errorf("failed to encode explanation: %w", err)
				}

				item := &model.ItineraryItem{
					Type:           slot.Type(),
					Category:       normalizeCategory(slot.Category),
					Title:          slot.Render(trip),
					Explainability: datatypes.JSON(payload),
				}
				if err := appendItem(ctx, tx, day, item); err != nil {
					return err
				}

				items = append(items, item)
				explanations = append(explanations, explanation)
			}
		}

		log, err := newGenerationLog(tripID, userID, prompt, prefs, days, explanations)
		if err != nil {
			return err
		}
		if err := tx.CreateGenerationLog(ctx, log); err != nil {
			return fmt.Errorf("failed to create generation log: %w", err)
		}

		outcome = &GenerationOutcome{Items: items, Log: log}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("Itinerary generated",
		zap.Int64("trip_id", tripID),
		zap.Int64("user_id", userID),
		zap.Int("items", len(outcome.Items)),
		zap.Int64("log_id", outcome.Log.ID),
	)
	return outcome, nil
}

// loadPreferenceSnapshot 用户没有偏好记录时返回 JSON null
func loadPreferenceSnapshot(ctx context.Context, tx repository.Store, userID int64) (json.RawMessage, error) {
	prefs, err := tx.GetPreferences(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return json.RawMessage("null"), nil
		}
		return nil, fmt.Errorf("failed to query user preferences: %w", err)
	}

	snapshot := preferenceSnapshot{
		TravelStyles: rawOrEmptyList(prefs.TravelStyles),
		Interests:    rawOrEmptyList(prefs.Interests),
		BudgetMin:    prefs.BudgetMin,
		BudgetMax:    prefs.BudgetMax,
		HomeAirport:  prefs.HomeAirport,
		Languages:    rawOrEmptyList(prefs.Languages),
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences snapshot: %w", err)
	}
	return payload, nil
}

// generationReason 偏好里带有兴趣或旅行风格时附在理由后面
func generationReason(itemType model.ItemType, prefs json.RawMessage) string {
	reason := fmt.Sprintf("Selected %s based on prompt and preferences", itemType)

	var extras []string
	if interests := joinStrings(gjson.GetBytes(prefs, "interests")); interests != "" {
		extras = append(extras, "interests: "+interests)
	}
	if styles := joinStrings(gjson.GetBytes(prefs, "travel_styles")); styles != "" {
		extras = append(extras, "travel styles: "+styles)
	}
	if len(extras) == 0 {
		return reason
	}
	return reason + " (" + strings.Join(extras, "; ") + ")"
}

func joinStrings(result gjson.Result) string {
	if !result.IsArray() {
		return ""
	}
	values := make([]string, 0, len(result.Array()))
	for _, v := range result.Array() {
		if s := strings.TrimSpace(v.String()); s != "" {
			values = append(values, s)
		}
	}
	return strings.Join(values, ", ")
}

func newGenerationLog(tripID, userID int64, prompt string, prefs json.RawMessage, days int, explanations []model.Explanation) (*model.GenerationLog, error) {
	contextPayload, err := json.Marshal(model.GenerationContext{
		Prompt:      prompt,
		Preferences: prefs,
		Days:        days,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation context: %w", err)
	}

	explanationsPayload, err := json.Marshal(explanations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode explanations: %w", err)
	}

	return &model.GenerationLog{
		UserID:       userID,
		TripID:       tripID,
		Context:      datatypes.JSON(contextPayload),
		Explanations: datatypes.JSON(explanationsPayload),
	}, nil
}

func rawOrEmptyList(v datatypes.JSON) json.RawMessage {
	if len(v) == 0 || string(v) == "null" {
		return json.RawMessage("[]")
	}
	return json.RawMessage(v)
}
