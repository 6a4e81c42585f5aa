package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type config struct {
	telegramToken   string
	adminTelegramId int64
	botURL          string

	dbHost, dbName, dbUser, dbPassword string
	dbPort                             int
	dbPoolMin, dbPoolMax               int
	ipAllocLockId                      int64

	wgInterfaceName     string
	wgServerPublicKey   string
	wgServerEndpoint    string
	wgClientDNS         string
	wgNetworkPrefix     string
	wgNetworkCIDR       int
	wgClientIPStart     int
	wgConfigPath        string
	wgConfigLockPath    string

	httpPort int

	isYookassaEnabled                    bool
	yookassaURL                          string
	yookassaShopId, yookassaSecretKey    string
	yookassaReturnURL                    string

	isHeleketEnabled                       bool
	heleketURL                             string
	heleketMerchantId                      string
	heleketApiPaymentKey                   string
	heleketTrustedIP                       string
	heleketDisableIPCheck                  bool
	heleketDisableSignatureCheck           bool

	tributeWebhookPath   string
	tributeWebhookSecret string

	referralTrialDays int

	remindersQuietHours bool

	blockedTelegramIds map[int64]bool
}

var conf config

func TelegramToken() string {
	return conf.telegramToken
}

func GetAdminTelegramId() int64 {
	return conf.adminTelegramId
}

func BotURL() string {
	return conf.botURL
}

func SetBotURL(botURL string) {
	conf.botURL = botURL
}

// DatabaseURL собирает DSN из отдельных DB_* переменных
func DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		conf.dbUser, conf.dbPassword, conf.dbHost, conf.dbPort, conf.dbName)
}

func DBPoolMin() int {
	return conf.dbPoolMin
}

func DBPoolMax() int {
	return conf.dbPoolMax
}

func IPAllocLockId() int64 {
	return conf.ipAllocLockId
}

func WGInterfaceName() string {
	return conf.wgInterfaceName
}

func WGServerPublicKey() string {
	return conf.wgServerPublicKey
}

func WGServerEndpoint() string {
	return conf.wgServerEndpoint
}

func WGClientDNS() string {
	return conf.wgClientDNS
}

func WGNetworkPrefix() string {
	return conf.wgNetworkPrefix
}

func WGNetworkCIDR() int {
	return conf.wgNetworkCIDR
}

func WGClientIPStart() int {
	return conf.wgClientIPStart
}

func WGConfigPath() string {
	return conf.wgConfigPath
}

func WGConfigLockPath() string {
	return conf.wgConfigLockPath
}

func GetHttpPort() int {
	return conf.httpPort
}

func IsYookassaEnabled() bool {
	return conf.isYookassaEnabled
}

func YookassaURL() string {
	return conf.yookassaURL
}

func YookassaShopId() string {
	return conf.yookassaShopId
}

func YookassaSecretKey() string {
	return conf.yookassaSecretKey
}

func YookassaReturnURL() string {
	return conf.yookassaReturnURL
}

func IsHeleketEnabled() bool {
	return conf.isHeleketEnabled
}

func HeleketURL() string {
	return conf.heleketURL
}

func HeleketMerchantId() string {
	return conf.heleketMerchantId
}

func HeleketApiPaymentKey() string {
	return conf.heleketApiPaymentKey
}

func HeleketTrustedIP() string {
	return conf.heleketTrustedIP
}

func HeleketDisableIPCheck() bool {
	return conf.heleketDisableIPCheck
}

func HeleketDisableSignatureCheck() bool {
	return conf.heleketDisableSignatureCheck
}

func TributeWebhookPath() string {
	return conf.tributeWebhookPath
}

func TributeWebhookSecret() string {
	return conf.tributeWebhookSecret
}

func ReferralTrialDays() int {
	return conf.referralTrialDays
}

func RemindersQuietHours() bool {
	return conf.remindersQuietHours
}

func GetBlockedTelegramIds() map[int64]bool {
	return conf.blockedTelegramIds
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Panicf("env %q not set", key)
	}
	return v
}

func mustEnvInt(key string) int {
	v := mustEnv(key)
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Panicf("invalid int in %q: %v", key, err)
	}
	return i
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Panicf("invalid int in %q: %v", key, err)
	}
	return i
}

func envInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Panicf("invalid int in %q: %v", key, err)
	}
	return i
}

func envStringDefault(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true"
}

func InitConfig() {
	if os.Getenv("DISABLE_ENV_FILE") != "true" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env loaded:", err)
		}
	}

	var err error
	conf.adminTelegramId, err = strconv.ParseInt(os.Getenv("ADMIN_TELEGRAM_ID"), 10, 64)
	if err != nil {
		panic("ADMIN_TELEGRAM_ID .env variable not set")
	}

	conf.telegramToken = mustEnv("TELEGRAM_BOT_TOKEN")

	conf.dbHost = envStringDefault("DB_HOST", "localhost")
	conf.dbPort = envIntDefault("DB_PORT", 5432)
	conf.dbName = mustEnv("DB_NAME")
	conf.dbUser = mustEnv("DB_USER")
	conf.dbPassword = mustEnv("DB_PASSWORD")
	conf.dbPoolMin = envIntDefault("DB_POOL_MIN", 5)
	conf.dbPoolMax = envIntDefault("DB_POOL_MAX", 20)
	conf.ipAllocLockId = envInt64Default("DB_IP_ALLOC_LOCK_ID", 871001)

	conf.wgInterfaceName = envStringDefault("WG_INTERFACE_NAME", "wg0")
	conf.wgServerPublicKey = mustEnv("WG_SERVER_PUBLIC_KEY")
	conf.wgServerEndpoint = mustEnv("WG_SERVER_ENDPOINT")
	conf.wgClientDNS = envStringDefault("WG_CLIENT_DNS", "1.1.1.1")
	conf.wgNetworkPrefix = envStringDefault("WG_CLIENT_NETWORK_PREFIX", "10.8")
	conf.wgNetworkCIDR = envIntDefault("WG_CLIENT_NETWORK_CIDR", 16)
	conf.wgClientIPStart = envIntDefault("WG_CLIENT_IP_START", 2)
	conf.wgConfigPath = envStringDefault("WG_CONFIG_PATH", "/etc/wireguard/wg0.conf")
	// Сентинел для файловой блокировки. Не сам конфиг, иначе дедлок с его заменой.
	conf.wgConfigLockPath = envStringDefault("WG_CONFIG_LOCK_PATH", "/run/lock/vpn-wg.lock")

	conf.httpPort = envIntDefault("HTTP_PORT", 8080)

	conf.isYookassaEnabled = envBool("YOOKASSA_ENABLED")
	if conf.isYookassaEnabled {
		conf.yookassaURL = envStringDefault("YOOKASSA_URL", "https://api.yookassa.ru/v3")
		conf.yookassaShopId = mustEnv("YOOKASSA_SHOP_ID")
		conf.yookassaSecretKey = mustEnv("YOOKASSA_SECRET_KEY")
		conf.yookassaReturnURL = envStringDefault("YOOKASSA_RETURN_URL", "https://t.me/MaxNet_VPN_bot")
	}

	conf.isHeleketEnabled = envBool("HELEKET_ENABLED")
	if conf.isHeleketEnabled {
		conf.heleketURL = envStringDefault("HELEKET_URL", "https://api.heleket.com/v1")
		conf.heleketMerchantId = mustEnv("HELEKET_MERCHANT_ID")
		conf.heleketApiPaymentKey = mustEnv("HELEKET_API_PAYMENT_KEY")
	}
	conf.heleketTrustedIP = envStringDefault("HELEKET_TRUSTED_IP", "31.133.220.8")
	conf.heleketDisableIPCheck = envBool("HELEKET_WEBHOOK_DISABLE_IP_CHECK")
	conf.heleketDisableSignatureCheck = envBool("HELEKET_WEBHOOK_DISABLE_SIGNATURE_CHECK")

	conf.tributeWebhookPath = envStringDefault("TRIBUTE_WEBHOOK_PATH", "")
	if conf.tributeWebhookPath != "" {
		conf.tributeWebhookSecret = mustEnv("TRIBUTE_WEBHOOK_SECRET")
	}

	conf.referralTrialDays = envIntDefault("REFERRAL_TRIAL_DAYS", 7)

	conf.remindersQuietHours = envBoolDefault("REMINDERS_QUIET_HOURS", true)

	conf.blockedTelegramIds = func() map[int64]bool {
		v := os.Getenv("BLOCKED_TELEGRAM_IDS")
		blockedMap := map[int64]bool{}
		if v == "" {
			return blockedMap
		}
		for _, idStr := range splitAndTrim(v) {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				panic(fmt.Sprintf("invalid telegram ID in BLOCKED_TELEGRAM_IDS: %v", err))
			}
			blockedMap[id] = true
		}
		slog.Info("Loaded blocked telegram IDs", "count", len(blockedMap))
		return blockedMap
	}()
}
