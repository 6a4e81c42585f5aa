package cache

import "testing"

func TestSetGetString(t *testing.T) {
	c := NewCache()

	c.SetString("promo_state_42", "waiting_code", 300)
	got, found := c.GetString("promo_state_42")
	if !found || got != "waiting_code" {
		t.Errorf("GetString = (%q, %v), want (\"waiting_code\", true)", got, found)
	}

	if _, found := c.GetString("promo_state_7"); found {
		t.Error("unknown key must not be found")
	}
}

func TestExpiredEntryIsNotReturned(t *testing.T) {
	c := NewCache()

	// Отрицательный TTL — запись просрочена в момент вставки
	c.SetString("promo_state_42", "waiting_code", -1)
	if _, found := c.GetString("promo_state_42"); found {
		t.Error("expired entry must not be found")
	}
}

func TestOverwriteKeepsLatestValue(t *testing.T) {
	c := NewCache()

	c.SetString("promo_state_42", "waiting_code", 300)
	c.SetString("promo_state_42", "waiting_confirm", 300)
	if got, _ := c.GetString("promo_state_42"); got != "waiting_confirm" {
		t.Errorf("GetString = %q, want \"waiting_confirm\"", got)
	}
}

func TestDelete(t *testing.T) {
	c := NewCache()

	c.SetString("promo_state_42", "waiting_code", 300)
	c.Delete("promo_state_42")
	if _, found := c.GetString("promo_state_42"); found {
		t.Error("deleted entry must not be found")
	}

	// Удаление отсутствующего ключа безопасно
	c.Delete("promo_state_7")
}
