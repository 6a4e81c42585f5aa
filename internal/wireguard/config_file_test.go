package wireguard

import (
	"path/filepath"
	"strings"
	"testing"
)

const baseConfig = `[Interface]
PrivateKey = SERVERPRIVATEKEY
Address = 10.8.0.1/16
ListenPort = 51820

# manually added peer, do not touch
[Peer]
PublicKey = MANUALPEERKEY
AllowedIPs = 10.8.200.1/16

`

func TestBuildPeerBlock(t *testing.T) {
	block := BuildPeerBlock("PUBKEY123", "10.8.0.2/16", 42)

	want := "# auto-added by vpn_service user=42\n[Peer]\nPublicKey = PUBKEY123\nAllowedIPs = 10.8.0.2/16\n\n"
	if block != want {
		t.Errorf("block = %q, want %q", block, want)
	}
}

func TestRemoveManagedBlockRoundTrip(t *testing.T) {
	content := baseConfig + BuildPeerBlock("PUBKEY123", "10.8.0.2/16", 42)

	out, removed := RemoveManagedBlock(content, "PUBKEY123")
	if !removed {
		t.Fatal("expected block to be removed")
	}
	if strings.Contains(out, "PUBKEY123") {
		t.Errorf("public key still present after removal:\n%s", out)
	}
	if out != baseConfig {
		t.Errorf("removal did not restore original content:\n%s", out)
	}
}

func TestRemoveManagedBlockKeepsOtherManagedPeers(t *testing.T) {
	content := baseConfig +
		BuildPeerBlock("PUBKEY_A", "10.8.0.2/16", 1) +
		BuildPeerBlock("PUBKEY_B", "10.8.0.3/16", 2)

	out, removed := RemoveManagedBlock(content, "PUBKEY_A")
	if !removed {
		t.Fatal("expected block to be removed")
	}
	if strings.Contains(out, "PUBKEY_A") {
		t.Error("removed key still present")
	}
	if !strings.Contains(out, "PUBKEY_B") {
		t.Error("unrelated managed block was removed")
	}
	if !strings.Contains(out, "MANUALPEERKEY") {
		t.Error("manual peer block was removed")
	}
}

func TestRemoveManagedBlockIgnoresManualPeers(t *testing.T) {
	out, removed := RemoveManagedBlock(baseConfig, "MANUALPEERKEY")
	if removed {
		t.Error("manual peer must never be removed")
	}
	if out != baseConfig {
		t.Error("content changed without a managed match")
	}
}

func TestRemoveManagedBlockMissingKey(t *testing.T) {
	content := baseConfig + BuildPeerBlock("PUBKEY123", "10.8.0.2/16", 42)
	out, removed := RemoveManagedBlock(content, "OTHERKEY")
	if removed {
		t.Error("unexpected removal")
	}
	if out != content {
		t.Error("content changed without a match")
	}
}

func TestConfigFileAppendAndRemove(t *testing.T) {
	dir := t.TempDir()
	cf := NewConfigFile(filepath.Join(dir, "wg0.conf"), filepath.Join(dir, "wg.lock"))

	if err := cf.AppendPeer("PUBKEY123", "10.8.0.2/16", 42); err != nil {
		t.Fatalf("AppendPeer: %v", err)
	}
	// Повторное добавление того же ключа — no-op
	if err := cf.AppendPeer("PUBKEY123", "10.8.0.2/16", 42); err != nil {
		t.Fatalf("AppendPeer repeat: %v", err)
	}
	if err := cf.RemovePeer("PUBKEY123"); err != nil {
		t.Fatalf("RemovePeer: %v", err)
	}
}

func TestBuildClientConfig(t *testing.T) {
	cfg := BuildClientConfig("CLIENTPRIV", "10.8.0.2", "1.1.1.1", "SERVERPUB", "vpn.example.com:51820")

	for _, want := range []string{
		"PrivateKey = CLIENTPRIV",
		"Address = 10.8.0.2/32",
		"DNS = 1.1.1.1",
		"PublicKey = SERVERPUB",
		"Endpoint = vpn.example.com:51820",
		"AllowedIPs = 0.0.0.0/0",
		"PersistentKeepalive = 25",
	} {
		if !strings.Contains(cfg, want) {
			t.Errorf("client config missing %q:\n%s", want, cfg)
		}
	}
}
