package wireguard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls     []string
	failShow  bool
	genkeyOut string
	pubkeyOut string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)

	if len(args) > 0 && args[0] == "show" && f.failShow {
		return "", fmt.Errorf("Unable to access interface: No such device")
	}
	if len(args) > 0 && args[0] == "genkey" {
		return f.genkeyOut, nil
	}
	return "", nil
}

func (f *fakeRunner) RunWithInput(ctx context.Context, input, name string, args ...string) (string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " ")+" <"+input)
	return f.pubkeyOut, nil
}

func newTestManager(t *testing.T, runner *fakeRunner) *Manager {
	t.Helper()
	dir := t.TempDir()
	cf := NewConfigFile(filepath.Join(dir, "wg0.conf"), filepath.Join(dir, "wg.lock"))
	return &Manager{iface: "wg0", runner: runner, configFile: cf}
}

func TestGenerateKeypair(t *testing.T) {
	runner := &fakeRunner{genkeyOut: "PRIVKEY", pubkeyOut: "PUBKEY"}
	m := newTestManager(t, runner)

	priv, pub, err := m.GenerateKeypair(context.Background())
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if priv != "PRIVKEY" || pub != "PUBKEY" {
		t.Errorf("keypair = (%s, %s), want (PRIVKEY, PUBKEY)", priv, pub)
	}
}

func TestAddPeerGatewayDown(t *testing.T) {
	runner := &fakeRunner{failShow: true}
	m := newTestManager(t, runner)

	err := m.AddPeer(context.Background(), "PUBKEY", "10.8.0.2/16", 42)
	if !errors.Is(err, ErrGatewayDown) {
		t.Fatalf("err = %v, want ErrGatewayDown", err)
	}
	for _, call := range runner.calls {
		if strings.Contains(call, "set wg0 peer") {
			t.Error("peer mutation attempted while gateway is down")
		}
	}
}

func TestAddPeerIssuesSetCommand(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)

	if err := m.AddPeer(context.Background(), "PUBKEY", "10.8.0.2/16", 42); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	want := "wg set wg0 peer PUBKEY allowed-ips 10.8.0.2/16"
	found := false
	for _, call := range runner.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", runner.calls, want)
	}
}

func TestRemovePeerIssuesRemoveCommand(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)

	if err := m.RemovePeer(context.Background(), "PUBKEY"); err != nil {
		t.Fatalf("RemovePeer: %v", err)
	}

	want := "wg set wg0 peer PUBKEY remove"
	found := false
	for _, call := range runner.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", runner.calls, want)
	}
}
