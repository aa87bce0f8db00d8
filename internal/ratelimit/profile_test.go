package ratelimit

import (
	"testing"
	"time"
)

func TestBuiltinProfilesAreValid(t *testing.T) {
	for name, p := range BuiltinProfiles() {
		if err := p.Validate(); err != nil {
			t.Errorf("builtin profile %q is invalid: %v", name, err)
		}
		if p.Name != name {
			t.Errorf("profile map key %q does not match name %q", name, p.Name)
		}
	}
}

func TestBuiltinProfileLimits(t *testing.T) {
	profiles := BuiltinProfiles()
	cases := []struct {
		name   string
		max    int
		window time.Duration
	}{
		{"auth", 5, 15 * time.Minute},
		{"descriptionFree", 10, time.Minute},
		{"descriptionPaid", 100, time.Minute},
		{"general", 100, time.Minute},
		{"strict", 10, time.Minute},
		{"burst", 20, 10 * time.Second},
	}
	for _, c := range cases {
		p, ok := profiles[c.name]
		if !ok {
			t.Errorf("missing builtin profile %q", c.name)
			continue
		}
		if p.MaxRequests != c.max {
			t.Errorf("%s: expected max %d, got %d", c.name, c.max, p.MaxRequests)
		}
		if p.Window != c.window {
			t.Errorf("%s: expected window %s, got %s", c.name, c.window, p.Window)
		}
	}
}

func TestAuthSensitiveProfilesFailClosed(t *testing.T) {
	profiles := BuiltinProfiles()
	if profiles["auth"].FailMode != FailClosed {
		t.Error("auth profile must fail closed")
	}
	if profiles["strict"].FailMode != FailClosed {
		t.Error("strict profile must fail closed")
	}
	if profiles["general"].FailMode != FailOpen {
		t.Error("general profile must fail open")
	}
	if profiles["burst"].FailMode != FailOpen {
		t.Error("burst profile must fail open")
	}
}

func TestProfileValidateRejectsMalformed(t *testing.T) {
	valid := Profile{
		Name:        "test",
		Scope:       ScopeIP,
		Window:      time.Minute,
		MaxRequests: 10,
		FailMode:    FailOpen,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty name", func(p *Profile) { p.Name = "" }},
		{"zero max", func(p *Profile) { p.MaxRequests = 0 }},
		{"negative max", func(p *Profile) { p.MaxRequests = -1 }},
		{"zero window", func(p *Profile) { p.Window = 0 }},
		{"negative burst", func(p *Profile) { p.BurstAllowance = -1 }},
		{"bad scope", func(p *Profile) { p.Scope = "session" }},
		{"bad fail mode", func(p *Profile) { p.FailMode = "maybe" }},
	}
	for _, c := range cases {
		p := valid
		c.mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}
