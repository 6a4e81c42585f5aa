package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Имена и юзернеймы из Telegram попадают в уведомления оператору и в
// рассылки. Пользователь, представившийся «MaxNet Support» или «Телеграм
// Поддержка», в таком контексте выглядит как сообщение от сервиса, поэтому
// служебные слова и ссылки вычищаются, а непоправимое заменяется плейсхолдером.

const usernamePlaceholder = "клиент"

// Разделители, которыми маскируют домены: t.me → t•m•e, t－m－e и т.п.
const obfuscationClass = `[\s\.\-/\\•﹒٫＿․·∙‧ꞏ‒–—﹘﹣⁻−]`

var (
	linkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?://\S+`),
		regexp.MustCompile(`(?i)www\.\S+`),
		regexp.MustCompile(`(?i)tg://\S+`),
		regexp.MustCompile(`(?i)telegram\.me\S*`),
		regexp.MustCompile(`(?i)t\.me/\+\S*`),
		regexp.MustCompile(`(?i)joinchat\S*`),
		regexp.MustCompile(`(?i)t\.me\S*`),
		regexp.MustCompile(`(?i)[tт]` + obfuscationClass + `+[mм]` + obfuscationClass + `*[eе]`),
	}

	serviceWordPattern = regexp.MustCompile(`(?i)(telegram|teleqram|teiegram|teieqram|telegrarn|` +
		`maxnet|wireguard|service|notif(?:ication)?|system|security|safety|support|` +
		`moderation|review|compliance|abuse|spam|report)`)

	russianServicePattern = regexp.MustCompile(`(?i)(телеграм|макснет|служебн|уведомлен|` +
		`поддержк|безопасн|модерац|жалоб|абуз)\w*`)

	// Токены, после которых имя не спасти даже вычисткой. maksnet — фолдинг
	// кириллического «макснет».
	bannedTokens = []string{
		"tme", "telegram", "teleqram", "teiegram", "teieqram", "telegrarn",
		"joinchat", "maxnet", "maksnet", "notification", "moderation", "review",
		"compliance", "abuse", "spam", "report",
	}

	// Пары, опасные только вместе: «vpn» или «support» по отдельности легальны
	bannedPairs = [][2]string{
		{"telegram", "support"},
		{"telegram", "admin"},
		{"vpn", "support"},
		{"vpn", "admin"},
		{"service", "support"},
		{"system", "admin"},
		{"security", "admin"},
	}

	// Гомоглифы, которые теряются при простом ToLower
	preLowerFold = map[rune]rune{
		'I': 'l',
		'İ': 'l',
		'Q': 'g',
		'＠': ' ',
	}

	cyrillicFold = map[rune]string{
		'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
		'е': "e", 'ё': "e", 'ж': "zh", 'з': "z", 'и': "i",
		'і': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m",
		'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s",
		'т': "t", 'у': "u", 'ф': "f", 'х': "h", 'ц': "c",
		'ч': "ch", 'ш': "sh", 'щ': "sh", 'ъ': "", 'ы': "y",
		'ь': "", 'э': "e", 'ю': "yu", 'я': "ya", '＿': "_",
	}

	obfuscationRun = regexp.MustCompile(obfuscationClass + `+`)
	nonAlnumRun    = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// foldForDetection приводит строку к каноничному виду для поиска токенов:
// NFKD, гомоглифы, кириллица в латиницу, rn→m, без разделителей.
func foldForDetection(value string) string {
	if value == "" {
		return ""
	}

	folded := norm.NFKD.String(value)

	var pre strings.Builder
	for _, r := range folded {
		if repl, ok := preLowerFold[r]; ok {
			pre.WriteRune(repl)
		} else {
			pre.WriteRune(r)
		}
	}
	folded = strings.ToLower(pre.String())

	var b strings.Builder
	for _, r := range folded {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		if repl, ok := cyrillicFold[r]; ok {
			b.WriteString(repl)
		} else {
			b.WriteRune(r)
		}
	}
	folded = b.String()

	folded = strings.ReplaceAll(folded, "rn", "m")
	folded = obfuscationRun.ReplaceAllString(folded, "")
	return nonAlnumRun.ReplaceAllString(folded, "")
}

// looksImpersonating решает, нельзя ли показывать строку вовсе.
func looksImpersonating(value string) bool {
	folded := foldForDetection(value)
	for _, token := range bannedTokens {
		if strings.Contains(folded, token) {
			return true
		}
	}
	for _, pair := range bannedPairs {
		if strings.Contains(folded, pair[0]) && strings.Contains(folded, pair[1]) {
			return true
		}
	}
	return false
}

func stripImpersonation(value string) string {
	updated := value
	for _, pattern := range linkPatterns {
		updated = pattern.ReplaceAllString(updated, " ")
	}
	updated = serviceWordPattern.ReplaceAllString(updated, " ")
	return russianServicePattern.ReplaceAllString(updated, " ")
}

// acceptCleaned компактит остаток вычистки и отклоняет строку целиком,
// если исходник или остаток всё ещё выглядят как служебное имя.
func acceptCleaned(cleaned, original string) *string {
	compacted := spaceRun.ReplaceAllString(cleaned, " ")
	compacted = strings.Trim(compacted, " \t\r\n-_.,/\\")
	compacted = strings.TrimSpace(compacted)

	if compacted == "" {
		return nil
	}
	if looksImpersonating(original) || looksImpersonating(compacted) {
		return nil
	}
	return &compacted
}

// SanitizeDisplayName вычищает имя или фамилию; nil — имя показывать нельзя.
func SanitizeDisplayName(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	original := *value
	cleaned := strings.ReplaceAll(original, "@", " ")
	return acceptCleaned(stripImpersonation(cleaned), original)
}

// SanitizeUsername вычищает юзернейм; nil — юзернейм показывать нельзя.
func SanitizeUsername(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	original := *value
	cleaned := strings.TrimPrefix(strings.TrimSpace(original), "@")
	return acceptCleaned(stripImpersonation(cleaned), original)
}

// UsernameForDisplay — безопасная форма юзернейма для сообщений оператору.
func UsernameForDisplay(username *string, withAt bool) string {
	sanitized := SanitizeUsername(username)
	if sanitized == nil || *sanitized == "" {
		return usernamePlaceholder
	}
	if withAt {
		return "@" + *sanitized
	}
	return *sanitized
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// IsSuspiciousUser — профиль подозрителен, если хоть одно осмысленное поле
// не переживает вычистку. Пустые и чисто символьные поля не в счёт.
func IsSuspiciousUser(username *string, firstName *string, lastName *string) bool {
	if username != nil && *username != "" &&
		hasLetterOrDigit(*username) && SanitizeUsername(username) == nil {
		return true
	}
	if firstName != nil && *firstName != "" &&
		hasLetterOrDigit(*firstName) && SanitizeDisplayName(firstName) == nil {
		return true
	}
	if lastName != nil && *lastName != "" &&
		hasLetterOrDigit(*lastName) && SanitizeDisplayName(lastName) == nil {
		return true
	}
	return false
}
