package service

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"TripMate/internal/model"
)

//go:embed templates/slots.yaml
var defaultSlotsYAML []byte

const fallbackDestination = "destination"

// SlotTemplate 生成时每天的一个固定时段
type SlotTemplate struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Title    string `yaml:"title"`
}

type slotFile struct {
	Slots []SlotTemplate `yaml:"slots"`
}

var (
	defaultSlots     []SlotTemplate
	defaultSlotsErr  error
	defaultSlotsOnce sync.Once
)

// DefaultSlots 内置的四个时段：上午活动、午餐、下午景点、晚餐
func DefaultSlots() ([]SlotTemplate, error) {
	defaultSlotsOnce.Do(func() {
		defaultSlots, defaultSlotsErr = ParseSlotTemplates(defaultSlotsYAML)
	})
	return defaultSlots, defaultSlotsErr
}

// ParseSlotTemplates 解析 YAML 时段模板
func ParseSlotTemplates(data []byte) ([]SlotTemplate, error) {
	var file slotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse slot templates: %w", err)
	}
	if len(file.Slots) == 0 {
		return nil, fmt.Errorf("slot templates are empty")
	}

	for i, slot := range file.Slots {
		if strings.TrimSpace(slot.Title) == "" {
			return nil, fmt.Errorf("slot template %d has empty title", i)
		}
		if slot.Category == "" {
			file.Slots[i].Category = string(model.DefaultItemType)
		}
	}
	return file.Slots, nil
}

// Type 时段对应的行程项类型
func (t SlotTemplate) Type() model.ItemType {
	return model.TypeForCategory(t.Category)
}

// Render 替换标题中的占位符
func (t SlotTemplate) Render(trip *model.Trip) string {
	destination := strings.TrimSpace(trip.DestinationCity)
	if destination == "" {
		destination = fallbackDestination
	}
	return strings.ReplaceAll(t.Title, "{destination}", destination)
}
