package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.IdleTimeout != DefaultIdleTimeout || p.WelcomeCooldown != DefaultWelcomeCooldown || p.CallTimeout != DefaultCallTimeout {
		t.Errorf("unexpected timings: %+v", p)
	}
	if !p.Finance.RequireEmployment {
		t.Error("employment should be required by default")
	}
	if p.SweepSchedule() != "@every 1m0s" {
		t.Errorf("SweepSchedule = %q", p.SweepSchedule())
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeProfile(t, `
bot_name: Weiss
staff_contacts: ["5511999990000", "5511988880000"]
idle_timeout: 15m
typing_delay: 500ms
call_timeout: 2s
finance:
  require_employment: false
keywords:
  visit: [passar ai]
messages:
  menu: "Escolha uma opção"
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.BotName != "Weiss" {
		t.Errorf("BotName = %q", p.BotName)
	}
	if p.Dealership != DefaultDealership {
		t.Errorf("Dealership should keep default, got %q", p.Dealership)
	}
	if len(p.StaffContacts) != 2 {
		t.Errorf("StaffContacts = %v", p.StaffContacts)
	}
	if p.IdleTimeout != 15*time.Minute || p.TypingDelay != 500*time.Millisecond {
		t.Errorf("durations not parsed: %v %v", p.IdleTimeout, p.TypingDelay)
	}
	if p.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v, want 2s", p.CallTimeout)
	}
	if p.Finance.RequireEmployment {
		t.Error("require_employment override ignored")
	}
	if got := p.Keywords["visit"]; len(got) != 1 || got[0] != "passar ai" {
		t.Errorf("Keywords = %v", p.Keywords)
	}
	if p.Messages.Menu != "Escolha uma opção" {
		t.Errorf("Menu = %q", p.Messages.Menu)
	}
	if p.Messages.Retry != DefaultMessages().Retry {
		t.Errorf("Retry should keep default, got %q", p.Messages.Retry)
	}
}

func TestLoadBlankMessageFallsBack(t *testing.T) {
	path := writeProfile(t, "messages:\n  retry: \"\"\n")
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Messages.Retry == "" {
		t.Error("blank message should fall back to default")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeProfile(t, "idle_timeout: [")); err == nil {
		t.Error("expected parse error")
	}
	_, err := Load(writeProfile(t, "idle_timeout: 0s\nsweep_interval: 10ms\ncall_timeout: -1s\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"idle_timeout", "sweep_interval", "call_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestExpand(t *testing.T) {
	got := Expand("Oi {name}, visita em {date} às {time}", "name", "Ana", "date", "amanha", "time", "10:00")
	if got != "Oi Ana, visita em amanha às 10:00" {
		t.Errorf("Expand = %q", got)
	}
	if Expand("sem {x}") != "sem {x}" {
		t.Error("Expand without vars should be identity")
	}
}

func TestDefaultMessagesComplete(t *testing.T) {
	m := DefaultMessages()
	for i, f := range m.fields() {
		if *f == "" {
			t.Errorf("default message %d is empty", i)
		}
	}
}
