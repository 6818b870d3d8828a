package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestCurrentOnEmptyStore(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	_, err = store.Current()
	if !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
}

func TestSetCurrentReplacesPreviousSelection(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if err := store.SetCurrent("se203", "se203.nordvpn.com.udp.ovpn"); err != nil {
		t.Fatalf("SetCurrent failed: %v", err)
	}
	if err := store.SetCurrent("de750", "de750.nordvpn.com.udp.ovpn"); err != nil {
		t.Fatalf("second SetCurrent failed: %v", err)
	}

	sel, err := store.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if sel.Name != "de750" || sel.ConfigFile != "de750.nordvpn.com.udp.ovpn" {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if time.Since(sel.SelectedAt) > time.Minute {
		t.Fatalf("selected_at not recent: %v", sel.SelectedAt)
	}
}

func TestSetCurrentRejectsEmptyValues(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if err := store.SetCurrent("", "x.ovpn"); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
	if err := store.SetCurrent("se203", " "); err == nil {
		t.Fatalf("expected empty config file to be rejected")
	}
}

func TestSelectionSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.SetCurrent("se203", "se203.nordvpn.com.udp.ovpn"); err != nil {
		t.Fatalf("SetCurrent failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	sel, err := reopened.Current()
	if err != nil {
		t.Fatalf("Current after reopen failed: %v", err)
	}
	if sel.Name != "se203" {
		t.Fatalf("unexpected selection %+v", sel)
	}
}
