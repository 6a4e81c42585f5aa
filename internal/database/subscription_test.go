package database

import (
	"strings"
	"testing"
	"time"
)

func TestBuildUpdateExpirationGuardsRepeatedEvent(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	eventName := "yookassa_payment_succeeded_abc"

	sqlStr, args, err := buildUpdateExpiration(42, expires, eventName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Повторная доставка того же события не должна проходить предикат
	if !strings.Contains(sqlStr, "last_event_name <> ") {
		t.Errorf("update must exclude rows already carrying the event, got: %s", sqlStr)
	}
	if !strings.Contains(sqlStr, "id = ") {
		t.Errorf("update must filter by id, got: %s", sqlStr)
	}

	if len(args) != 4 {
		t.Fatalf("args = %v, want 4 values", args)
	}
	if args[0] != expires || args[1] != eventName {
		t.Errorf("SET args = %v, want expires_at then event name", args[:2])
	}
	if args[2] != int64(42) || args[3] != eventName {
		t.Errorf("WHERE args = %v, want id then event name", args[2:])
	}
}
