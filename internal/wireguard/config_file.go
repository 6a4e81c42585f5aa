package wireguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Маркер управляемых блоков: трогаем только то, что сами добавили.
const managedBlockPrefix = "# auto-added by vpn_service user="

// ConfigFile управляет peer-блоками в конфиге интерфейса. Все мутации идут
// под эксклюзивной файловой блокировкой на отдельном сентинеле и заменяют
// файл атомарно (temp + fsync + rename).
type ConfigFile struct {
	path     string
	lockPath string
}

func NewConfigFile(path, lockPath string) *ConfigFile {
	return &ConfigFile{path: path, lockPath: lockPath}
}

func (cf *ConfigFile) AppendPeer(publicKey, ipCIDR string, telegramId int64) error {
	return cf.mutate(func(content string) (string, bool) {
		if strings.Contains(content, "PublicKey = "+publicKey) {
			return content, false
		}
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return content + BuildPeerBlock(publicKey, ipCIDR, telegramId), true
	})
}

func (cf *ConfigFile) RemovePeer(publicKey string) error {
	return cf.mutate(func(content string) (string, bool) {
		return RemoveManagedBlock(content, publicKey)
	})
}

func (cf *ConfigFile) mutate(apply func(string) (string, bool)) error {
	lock := flock.New(cf.lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire config lock: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(cf.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	updated, changed := apply(string(data))
	if !changed {
		return nil
	}
	return atomicWrite(cf.path, []byte(updated))
}

// BuildPeerBlock собирает управляемый блок: маркер, [Peer], ключ, адрес,
// завершающая пустая строка.
func BuildPeerBlock(publicKey, ipCIDR string, telegramId int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%d\n", managedBlockPrefix, telegramId)
	b.WriteString("[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", publicKey)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", ipCIDR)
	b.WriteString("\n")
	return b.String()
}

// RemoveManagedBlock вырезает управляемый блок с точным совпадением PublicKey.
// Немаркированные блоки ([Interface], руками добавленные пиры) не трогаются.
func RemoveManagedBlock(content, publicKey string) (string, bool) {
	lines := strings.Split(content, "\n")
	var out []string
	removed := false

	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(lines[i], managedBlockPrefix) {
			out = append(out, lines[i])
			continue
		}

		// Граница блока — пустая строка или конец файла
		end := i + 1
		for end < len(lines) && strings.TrimSpace(lines[end]) != "" {
			end++
		}

		match := false
		for j := i; j < end; j++ {
			if strings.TrimSpace(lines[j]) == "PublicKey = "+publicKey {
				match = true
				break
			}
		}

		if match {
			removed = true
			// Съедаем и завершающую пустую строку блока
			if end < len(lines) && strings.TrimSpace(lines[end]) == "" {
				end++
			}
			i = end - 1
			continue
		}

		for j := i; j < end; j++ {
			out = append(out, lines[j])
		}
		i = end - 1
	}

	return strings.Join(out, "\n"), removed
}

// BuildClientConfig выдаёт текст клиентского конфига.
func BuildClientConfig(privateKey, ip, dns, serverPublicKey, endpoint string) string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", privateKey)
	fmt.Fprintf(&b, "Address = %s/32\n", ip)
	fmt.Fprintf(&b, "DNS = %s\n", dns)
	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", serverPublicKey)
	fmt.Fprintf(&b, "Endpoint = %s\n", endpoint)
	b.WriteString("AllowedIPs = 0.0.0.0/0\n")
	b.WriteString("PersistentKeepalive = 25\n")
	return b.String()
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wg-conf-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to fsync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to chmod temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
