package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const DateLayout = "2006-01-02"

var clockLayouts = []string{"15:04", "15:04:05"}

// ParseClock 解析一天中的时刻（HH:MM 或 HH:MM:SS），不带日期部分
func ParseClock(s string) (datatypes.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, expected HH:MM or HH:MM:SS", s)
}

// FormatClock 输出 HH:MM:SS，nil 返回 nil
func FormatClock(t *datatypes.Time) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

// FormatDate 输出 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayDate 第 dayNumber 天的日期 = 开始日期 + (dayNumber-1) 个自然日，不做时区换算
func DayDate(start time.Time, dayNumber int) time.Time {
	return start.AddDate(0, 0, dayNumber-1)
}

// TripDays 行程天数 = ceil((end-start)/1天) + 1，至少为 1
func TripDays(start, end *time.Time) int {
	if start == nil || end == nil {
		return 1
	}

	days := int(math.Ceil(end.Sub(*start).Hours()/24)) + 1
	if days < 1 {
		return 1
	}
	return days
}
