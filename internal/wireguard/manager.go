package wireguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

var ErrGatewayDown = errors.New("wireguard interface is not available")

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	RunWithInput(ctx context.Context, input, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (execRunner) RunWithInput(ctx context.Context, input, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Manager владеет peer-таблицей живого интерфейса и её отражением в конфиге.
type Manager struct {
	iface      string
	runner     commandRunner
	configFile *ConfigFile
}

func NewManager(iface string, configFile *ConfigFile) *Manager {
	return &Manager{iface: iface, runner: execRunner{}, configFile: configFile}
}

func (m *Manager) GenerateKeypair(ctx context.Context) (privateKey, publicKey string, err error) {
	privateKey, err = m.runner.Run(ctx, "wg", "genkey")
	if err != nil {
		return "", "", fmt.Errorf("failed to generate private key: %w", err)
	}
	publicKey, err = m.runner.RunWithInput(ctx, privateKey, "wg", "pubkey")
	if err != nil {
		return "", "", fmt.Errorf("failed to derive public key: %w", err)
	}
	return privateKey, publicKey, nil
}

// Probe проверяет, что интерфейс поднят. Отказ — ErrGatewayDown, его нельзя
// глотать: транзакция провижининга должна упасть до мутаций базы.
func (m *Manager) Probe(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "wg", "show", m.iface); err != nil {
		return fmt.Errorf("%w: %s", ErrGatewayDown, err)
	}
	return nil
}

// AddPeer добавляет пира в живой интерфейс, затем в конфиг. Ошибка записи
// конфига не фатальна: рантайм авторитетен, файл догонит реконсиляция.
func (m *Manager) AddPeer(ctx context.Context, publicKey, ipCIDR string, telegramId int64) error {
	if err := m.Probe(ctx); err != nil {
		return err
	}
	if _, err := m.runner.Run(ctx, "wg", "set", m.iface, "peer", publicKey, "allowed-ips", ipCIDR); err != nil {
		return fmt.Errorf("failed to add peer: %w", err)
	}
	if err := m.configFile.AppendPeer(publicKey, ipCIDR, telegramId); err != nil {
		slog.Error("Failed to persist peer to config file", "error", err)
	}
	return nil
}

func (m *Manager) RemovePeer(ctx context.Context, publicKey string) error {
	if _, err := m.runner.Run(ctx, "wg", "set", m.iface, "peer", publicKey, "remove"); err != nil {
		return fmt.Errorf("failed to remove peer: %w", err)
	}
	if err := m.configFile.RemovePeer(publicKey); err != nil {
		slog.Error("Failed to remove peer from config file", "error", err)
	}
	return nil
}
