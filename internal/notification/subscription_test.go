package notification

import (
	"testing"
	"time"

	"maxnet-vpn-bot/internal/database"
)

func TestClassifyReminder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		until time.Duration
		want  string
	}{
		{"just inside 3d window", 72 * time.Hour, database.NotificationExpires3d},
		{"upper edge of 3d window", 73 * time.Hour, database.NotificationExpires3d},
		{"below 3d window floor", 60 * time.Hour, ""},
		{"one day out", 24 * time.Hour, database.NotificationExpires1d},
		{"upper edge of 1d window", 25 * time.Hour, database.NotificationExpires1d},
		{"below 1d window floor", 12 * time.Hour, ""},
		{"ninety minutes out", 90 * time.Minute, database.NotificationExpires1h},
		{"upper edge of 1h window", 2 * time.Hour, database.NotificationExpires1h},
		{"below 1h window floor", 1 * time.Hour, ""},
		{"already expired", -1 * time.Hour, ""},
		{"far in the future", 200 * time.Hour, ""},
		{"gap between 1d and 3d", 40 * time.Hour, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyReminder(now.Add(tt.until), now)
			if got != tt.want {
				t.Errorf("ClassifyReminder(now+%v) = %q, want %q", tt.until, got, tt.want)
			}
		})
	}
}

func TestClassifyReminderWindowsDoNotOverlap(t *testing.T) {
	// Каждый срок попадает максимум в одно окно
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for d := time.Duration(0); d <= 80*time.Hour; d += 30 * time.Minute {
		got := ClassifyReminder(now.Add(d), now)
		switch got {
		case "", database.NotificationExpires3d, database.NotificationExpires1d, database.NotificationExpires1h:
		default:
			t.Fatalf("unexpected classification %q at %v", got, d)
		}
	}
}

func TestInQuietWindow(t *testing.T) {
	tests := []struct {
		hour int
		want bool
	}{
		{8, false},
		{9, true},
		{12, true},
		{22, true},
		{23, false},
		{0, false},
		{3, false},
	}

	for _, tt := range tests {
		now := time.Date(2025, 6, 1, tt.hour, 30, 0, 0, time.UTC)
		if got := InQuietWindow(now); got != tt.want {
			t.Errorf("InQuietWindow(hour=%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestReminderText(t *testing.T) {
	expires := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

	for _, typ := range []string{
		database.NotificationExpires3d,
		database.NotificationExpires1d,
		database.NotificationExpires1h,
	} {
		if reminderText(typ, expires) == "" {
			t.Errorf("reminderText(%q) is empty", typ)
		}
	}
	if reminderText("unknown", expires) != "" {
		t.Error("reminderText for unknown type must be empty")
	}
}
