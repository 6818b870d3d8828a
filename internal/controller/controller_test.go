package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nordctl/internal/config"
	"nordctl/internal/firewall"
	"nordctl/internal/service"
	"nordctl/internal/state"
)

type fakeFirewall struct {
	ops     []string
	syncErr error
}

func (f *fakeFirewall) Sync(action firewall.Action) error {
	f.ops = append(f.ops, "sync:"+string(action))
	return f.syncErr
}

func (f *fakeFirewall) Reload() error {
	f.ops = append(f.ops, "reload")
	return nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeSelector struct {
	selected []string
	err      error
}

func (f *fakeSelector) Select(name string) error {
	f.selected = append(f.selected, name)
	return f.err
}

type recordingServices struct {
	service.MockManager
	ops []string
}

func newRecordingServices() *recordingServices {
	rs := &recordingServices{}
	rs.StartFunc = func(unit string) error { rs.ops = append(rs.ops, "start:"+unit); return nil }
	rs.StopFunc = func(unit string) error { rs.ops = append(rs.ops, "stop:"+unit); return nil }
	rs.RestartFunc = func(unit string) error { rs.ops = append(rs.ops, "restart:"+unit); return nil }
	return rs
}

type stubDoer struct {
	err error
}

func (d stubDoer) Do(req *http.Request) (*http.Response, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{StatusCode: 204, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

type fixtures struct {
	cfg       config.Config
	services  *recordingServices
	fw        *fakeFirewall
	refresher *fakeRefresher
	selector  *fakeSelector
	store     *state.Store
}

func newFixtures(t *testing.T) *fixtures {
	t.Helper()
	cfg := config.Default()
	cfg.ActiveConfigPath = filepath.Join(t.TempDir(), "client.conf")
	store, err := state.Open(":memory:")
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &fixtures{
		cfg:       cfg,
		services:  newRecordingServices(),
		fw:        &fakeFirewall{},
		refresher: &fakeRefresher{},
		selector:  &fakeSelector{},
		store:     store,
	}
}

func (f *fixtures) controller(doer HTTPDoer) *Controller {
	probe := NewProbe(f.cfg.ProbeURL, time.Second, doer)
	return New(f.cfg, f.services, f.fw, f.refresher, f.selector, f.store, probe)
}

func equalOps(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestStartWithoutServerConfigured(t *testing.T) {
	f := newFixtures(t)
	c := f.controller(stubDoer{})

	err := c.Start(context.Background(), "")
	if !errors.Is(err, ErrNoServerConfigured) {
		t.Fatalf("expected ErrNoServerConfigured, got %v", err)
	}
	if len(f.services.ops) != 0 || len(f.fw.ops) != 0 {
		t.Fatalf("expected no mutations, got services=%v firewall=%v", f.services.ops, f.fw.ops)
	}
}

func TestStartWithExistingActiveConfig(t *testing.T) {
	f := newFixtures(t)
	if err := os.WriteFile(f.cfg.ActiveConfigPath, []byte("client\nremote 185.65.134.163 1194\n"), 0o600); err != nil {
		t.Fatalf("write active config: %v", err)
	}
	c := f.controller(stubDoer{})

	if err := c.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !equalOps(f.services.ops, []string{"start:openvpn"}) {
		t.Fatalf("unexpected service ops %v", f.services.ops)
	}
	if !equalOps(f.fw.ops, []string{"sync:add", "reload"}) {
		t.Fatalf("unexpected firewall ops %v", f.fw.ops)
	}
	if f.refresher.calls != 0 {
		t.Fatalf("plain start must not refresh the bundle")
	}
}

func TestStartWithNameDelegatesToSet(t *testing.T) {
	f := newFixtures(t)
	c := f.controller(stubDoer{})

	if err := c.Start(context.Background(), "se203"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if f.refresher.calls != 1 {
		t.Fatalf("expected bundle refresh, got %d calls", f.refresher.calls)
	}
	if !equalOps(f.selector.selected, []string{"se203"}) {
		t.Fatalf("unexpected selections %v", f.selector.selected)
	}
}

func TestSetSequence(t *testing.T) {
	f := newFixtures(t)
	c := f.controller(stubDoer{})

	if err := c.Set(context.Background(), "se203"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !equalOps(f.fw.ops, []string{"sync:delete", "sync:add", "reload"}) {
		t.Fatalf("unexpected firewall ops %v", f.fw.ops)
	}
	if !equalOps(f.services.ops, []string{"restart:openvpn"}) {
		t.Fatalf("unexpected service ops %v", f.services.ops)
	}
	if !equalOps(f.selector.selected, []string{"se203"}) {
		t.Fatalf("unexpected selections %v", f.selector.selected)
	}
}

func TestSetProceedsWhenRefreshFails(t *testing.T) {
	f := newFixtures(t)
	f.refresher.err = errors.New("download timeout")
	c := f.controller(stubDoer{})

	if err := c.Set(context.Background(), "se203"); err != nil {
		t.Fatalf("Set should tolerate refresh failure, got %v", err)
	}
	if !equalOps(f.selector.selected, []string{"se203"}) {
		t.Fatalf("expected selection despite refresh failure, got %v", f.selector.selected)
	}
}

func TestSetAbortsWhenSelectorFails(t *testing.T) {
	f := newFixtures(t)
	f.selector.err = errors.New("server nosuch1 not found")
	c := f.controller(stubDoer{})

	if err := c.Set(context.Background(), "nosuch1"); err == nil {
		t.Fatalf("expected Set to fail")
	}
	// Rules were retracted but nothing further happened: the documented
	// mixed state on mid-sequence failure.
	if !equalOps(f.fw.ops, []string{"sync:delete"}) {
		t.Fatalf("unexpected firewall ops %v", f.fw.ops)
	}
	if len(f.services.ops) != 0 {
		t.Fatalf("unexpected service ops %v", f.services.ops)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixtures(t)
	c := f.controller(stubDoer{})

	if err := c.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	firstOps := append([]string(nil), f.fw.ops...)

	f.fw.ops = nil
	f.services.ops = nil
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if !equalOps(f.fw.ops, firstOps) {
		t.Fatalf("second Stop diverged: first=%v second=%v", firstOps, f.fw.ops)
	}
	if !equalOps(f.fw.ops, []string{"sync:delete", "reload"}) {
		t.Fatalf("unexpected firewall ops %v", f.fw.ops)
	}
}

func TestRestartLeavesRulesAlone(t *testing.T) {
	f := newFixtures(t)
	c := f.controller(stubDoer{})

	if err := c.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if !equalOps(f.services.ops, []string{"restart:openvpn"}) {
		t.Fatalf("unexpected service ops %v", f.services.ops)
	}
	if !equalOps(f.fw.ops, []string{"reload"}) {
		t.Fatalf("unexpected firewall ops %v", f.fw.ops)
	}
}

func TestStatusReportsSelectionAndStates(t *testing.T) {
	f := newFixtures(t)
	f.services.StateFunc = func(unit string) (service.State, error) {
		if unit == "openvpn" {
			return service.StateRunning, nil
		}
		return service.StateStopped, nil
	}
	if err := f.store.SetCurrent("se203", "se203.nordvpn.com.udp.ovpn"); err != nil {
		t.Fatalf("SetCurrent failed: %v", err)
	}
	c := f.controller(stubDoer{})

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.VPNState != "running" || st.FirewallState != "stopped" {
		t.Fatalf("unexpected states %+v", st)
	}
	if !st.Online {
		t.Fatalf("expected online with responsive probe")
	}
	if st.Server != "se203.nordvpn.com.udp.ovpn" {
		t.Fatalf("unexpected server %q", st.Server)
	}
	if st.SelectedAt == "" {
		t.Fatalf("expected selectedAt to be populated")
	}
}

func TestStatusWithoutSelectionReportsNone(t *testing.T) {
	f := newFixtures(t)
	c := f.controller(stubDoer{err: errors.New("network unreachable")})

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Server != NoServerSentinel {
		t.Fatalf("expected %q, got %q", NoServerSentinel, st.Server)
	}
	if st.Online {
		t.Fatalf("expected offline with failing probe")
	}
}
