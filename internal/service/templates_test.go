package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TripMate/internal/model"
)

func TestDefaultSlots(t *testing.T) {
	slots, err := DefaultSlots()
	require.NoError(t, err)
	require.Len(t, slots, 4)

	names := make([]string, 0, len(slots))
	for _, s := range slots {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"morning", "lunch", "afternoon", "dinner"}, names)
	assert.Equal(t, model.ItemTypeRestaurant, slots[1].Type())
	assert.Equal(t, model.ItemTypeActivity, slots[2].Type())
}

func TestParseSlotTemplates(t *testing.T) {
	slots, err := ParseSlotTemplates([]byte(`
slots:
  - name: breakfast
    title: Breakfast near {destination}
  - name: check_in
    category: ACCOMMODATION
    title: Hotel check-in
`))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "ACTIVITY", slots[0].Category)
	assert.Equal(t, model.ItemTypeHotel, slots[1].Type())

	_, err = ParseSlotTemplates([]byte(`slots: []`))
	assert.Error(t, err)

	_, err = ParseSlotTemplates([]byte("slots:\n  - name: x\n    title: \"  \"\n"))
	assert.Error(t, err)

	_, err = ParseSlotTemplates([]byte(`{{{`))
	assert.Error(t, err)
}

func TestSlotTemplateRender(t *testing.T) {
	slot := SlotTemplate{Title: "Morning activity in {destination}"}

	assert.Equal(t, "Morning activity in Lisbon", slot.Render(&model.Trip{DestinationCity: " Lisbon "}))
	assert.Equal(t, "Morning activity in destination", slot.Render(&model.Trip{}))
}

func TestCustomSlotsDriveGeneration(t *testing.T) {
	store := seedStore()
	slots, err := ParseSlotTemplates([]byte("slots:\n  - name: only\n    category: OTHER\n    title: Free time in {destination}\n"))
	require.NoError(t, err)

	svc, err := NewItineraryService(Dependencies{Store: store, Slots: slots})
	require.NoError(t, err)

	result, err := svc.GenerateItinerary(context.Background(), otherTripID, ownerID, "rest")
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Free time in Osaka", result.Items[0].Title)
	assert.Equal(t, "FREE_TIME", result.Items[0].Type)
}
