package servers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nordctl/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(":memory:")
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func writeBundleConfig(t *testing.T, bundleDir, name, content string) {
	t.Helper()
	udpDir := filepath.Join(bundleDir, "ovpn_udp")
	if err := os.MkdirAll(udpDir, 0o755); err != nil {
		t.Fatalf("mkdir bundle dir: %v", err)
	}
	path := filepath.Join(udpDir, ConfigFileName(name))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write bundle config: %v", err)
	}
}

func TestSelectInstallsRewrittenConfig(t *testing.T) {
	tempDir := t.TempDir()
	bundleDir := filepath.Join(tempDir, "bundle")
	activePath := filepath.Join(tempDir, "client.conf")
	credsPath := "/etc/openvpn/nordvpn-auth.txt"
	store := newTestStore(t)

	writeBundleConfig(t, bundleDir, "se203", sampleConfig)

	selector := NewSelector(bundleDir, activePath, credsPath, store)
	if err := selector.Select("se203"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	installed, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("read active config: %v", err)
	}
	text := string(installed)
	if !strings.Contains(text, "auth-user-pass "+credsPath) {
		t.Fatalf("auth-user-pass not rewritten:\n%s", text)
	}
	if strings.Contains(text, "auth-user-pass\n") {
		t.Fatalf("bare auth-user-pass left behind:\n%s", text)
	}
	for _, directive := range []string{
		"script-security 2",
		"up /etc/openvpn/update-resolv-conf",
		"down /etc/openvpn/update-resolv-conf",
	} {
		if !strings.Contains(text, directive) {
			t.Fatalf("missing directive %q:\n%s", directive, text)
		}
	}

	// The wire-facing part of the config survives the rewrite.
	endpoints, err := ParseRemoteEndpoints(text)
	if err != nil {
		t.Fatalf("installed config does not parse: %v", err)
	}
	if endpoints[0].String() != "185.65.134.163:1194" {
		t.Fatalf("unexpected endpoint %s", endpoints[0])
	}
}

func TestSelectRecordsSelection(t *testing.T) {
	tempDir := t.TempDir()
	bundleDir := filepath.Join(tempDir, "bundle")
	store := newTestStore(t)
	writeBundleConfig(t, bundleDir, "se203", sampleConfig)

	selector := NewSelector(bundleDir, filepath.Join(tempDir, "client.conf"), "/etc/creds", store)
	if err := selector.Select("se203"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	sel, err := store.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if sel.Name != "se203" || sel.ConfigFile != "se203.nordvpn.com.udp.ovpn" {
		t.Fatalf("unexpected selection %+v", sel)
	}
}

func TestSelectOverwritesPreviousActiveConfig(t *testing.T) {
	tempDir := t.TempDir()
	bundleDir := filepath.Join(tempDir, "bundle")
	activePath := filepath.Join(tempDir, "client.conf")
	store := newTestStore(t)

	writeBundleConfig(t, bundleDir, "se203", sampleConfig)
	writeBundleConfig(t, bundleDir, "de750", "client\nremote 194.36.108.1 1194\nauth-user-pass\n")

	selector := NewSelector(bundleDir, activePath, "/etc/creds", store)
	if err := selector.Select("se203"); err != nil {
		t.Fatalf("first Select failed: %v", err)
	}
	if err := selector.Select("de750"); err != nil {
		t.Fatalf("second Select failed: %v", err)
	}

	installed, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("read active config: %v", err)
	}
	if strings.Contains(string(installed), "185.65.134.163") {
		t.Fatalf("previous config content leaked into new active config")
	}
	if !strings.Contains(string(installed), "194.36.108.1") {
		t.Fatalf("new config content missing")
	}
}

func TestSelectUnknownServerFails(t *testing.T) {
	tempDir := t.TempDir()
	store := newTestStore(t)
	selector := NewSelector(filepath.Join(tempDir, "bundle"), filepath.Join(tempDir, "client.conf"), "/etc/creds", store)

	if err := selector.Select("nosuch1"); err == nil {
		t.Fatalf("expected missing server config to fail")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "client.conf")); !os.IsNotExist(err) {
		t.Fatalf("active config must not be created on failure")
	}
}

func TestSelectRejectsTraversalNames(t *testing.T) {
	store := newTestStore(t)
	selector := NewSelector("/bundle", "/active", "/creds", store)
	for _, name := range []string{"", "../se203", "a/b", `a\b`} {
		if err := selector.Select(name); err == nil {
			t.Fatalf("expected name %q to be rejected", name)
		}
	}
}

func TestListLocal(t *testing.T) {
	tempDir := t.TempDir()
	bundleDir := filepath.Join(tempDir, "bundle")
	writeBundleConfig(t, bundleDir, "se203", sampleConfig)
	writeBundleConfig(t, bundleDir, "de750", sampleConfig)

	names, err := ListLocal(bundleDir)
	if err != nil {
		t.Fatalf("ListLocal failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 servers, got %#v", names)
	}

	empty, err := ListLocal(filepath.Join(tempDir, "missing"))
	if err != nil {
		t.Fatalf("ListLocal on missing dir failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no servers, got %#v", empty)
	}
}
