package utils

import "testing"

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		expected *string
	}{
		{"plain username", strPtr("john_doe"), strPtr("john_doe")},
		{"at prefix stripped", strPtr("@john_doe"), strPtr("john_doe")},
		{"digits survive", strPtr("ioajfd123"), strPtr("ioajfd123")},
		{"www without dot is fine", strPtr("tsstewww"), strPtr("tsstewww")},
		{"telegram link", strPtr("t.me/spam"), nil},
		{"obfuscated domain", strPtr("t.•m•e"), nil},
		{"telegram word", strPtr("telegram_bot"), nil},
		{"maxnet impersonation", strPtr("maxnet_admin"), nil},
		{"vpn support pair", strPtr("vpn_support_247"), nil},
		{"vpn alone is fine", strPtr("vpn_fan"), strPtr("vpn_fan")},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeUsername(tt.input)
			if !eqStrPtr(got, tt.expected) {
				t.Errorf("SanitizeUsername(%s) = %s, want %s",
					ptrStr(tt.input), ptrStr(got), ptrStr(tt.expected))
			}
		})
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		expected *string
	}{
		{"latin name", strPtr("John"), strPtr("John")},
		{"russian name", strPtr("Алексей"), strPtr("Алексей")},
		{"symbols trimmed", strPtr("$_"), strPtr("$")},
		{"at replaced by space", strPtr("John @user"), strPtr("John user")},
		{"url inside", strPtr("John https://t.me/spam"), nil},
		{"service pair", strPtr("Telegram Support"), nil},
		{"russian service pair", strPtr("Телеграм Поддержка"), nil},
		{"brand impersonation", strPtr("MaxNet Support"), nil},
		{"cyrillic brand impersonation", strPtr("МаксНет Поддержка"), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeDisplayName(tt.input)
			if !eqStrPtr(got, tt.expected) {
				t.Errorf("SanitizeDisplayName(%s) = %s, want %s",
					ptrStr(tt.input), ptrStr(got), ptrStr(tt.expected))
			}
		})
	}
}

func TestIsSuspiciousUser(t *testing.T) {
	tests := []struct {
		name      string
		username  *string
		firstName *string
		lastName  *string
		expected  bool
	}{
		{"normal user", strPtr("john_doe"), strPtr("John"), strPtr("Doe"), false},
		{"normal russian user", strPtr("alexey123"), strPtr("Алексей"), strPtr("Иванов"), false},
		{"nil last name", strPtr("user123"), strPtr("Алексей"), nil, false},
		{"empty last name", strPtr("user456"), strPtr("Алексей"), strPtr(""), false},
		{"symbols-only first name", strPtr("tsstewww"), strPtr("$_"), nil, false},
		{"dot first name", strPtr("seleqep"), strPtr("."), nil, false},
		{"telegram in username", strPtr("telegram_bot"), strPtr("John"), strPtr("Doe"), true},
		{"service pair in first name", strPtr("john_doe"), strPtr("Telegram Support"), nil, true},
		{"link in last name", strPtr("john_doe"), strPtr("John"), strPtr("t.me/spam"), true},
		{"obfuscated domain username", strPtr("t•m•e"), nil, nil, true},
		{"russian service first name", strPtr(""), strPtr("Телеграм"), nil, true},
		{"brand impersonator", strPtr("maxnet_help"), strPtr("Настоящий"), nil, true},
		{"vpn support pair", nil, strPtr("VPN Support"), nil, true},
		{"support alone is fine", strPtr("CompanySupportAdmin"), strPtr("Company"), strPtr("Admin"), false},
		{"all nil", nil, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsSuspiciousUser(tt.username, tt.firstName, tt.lastName)
			if got != tt.expected {
				t.Errorf("IsSuspiciousUser(%s, %s, %s) = %v, want %v",
					ptrStr(tt.username), ptrStr(tt.firstName), ptrStr(tt.lastName),
					got, tt.expected)
			}
		})
	}
}

func TestUsernameForDisplay(t *testing.T) {
	tests := []struct {
		name     string
		username *string
		withAt   bool
		expected string
	}{
		{"with at", strPtr("john_doe"), true, "@john_doe"},
		{"without at", strPtr("john_doe"), false, "john_doe"},
		{"impersonator falls back", strPtr("telegram"), true, "клиент"},
		{"nil falls back", nil, false, "клиент"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UsernameForDisplay(tt.username, tt.withAt); got != tt.expected {
				t.Errorf("UsernameForDisplay(%s, %v) = %q, want %q",
					ptrStr(tt.username), tt.withAt, got, tt.expected)
			}
		})
	}
}

func TestFoldForDetection(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"t.•m•e", "tme"},
		{"Т－м.е", "tme"},
		{"МаксНет", "maksnet"},
		{"tele gra rn", "telegram"},
		{"john_doe", "johndoe"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := foldForDetection(tt.in); got != tt.want {
			t.Errorf("foldForDetection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func strPtr(s string) *string {
	return &s
}

func ptrStr(ptr *string) string {
	if ptr == nil {
		return "<nil>"
	}
	return *ptr
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
