package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	app, err := New("1.0.0", "abc123", "2024-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if app.Version() != "1.0.0" {
		t.Errorf("Version() = %s, want 1.0.0", app.Version())
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.Config() == nil {
		t.Error("Config() returned nil")
	}
}

// TestApp_Client_RequiresCredentials verifies the lazy client refuses to
// build without a base URL and key.
func TestApp_Client_RequiresCredentials(t *testing.T) {
	app, err := New("dev", "none", "none")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	app.config.BaseURL = ""
	app.config.APIKey = ""

	if _, err := app.Client(); err == nil {
		t.Error("Client() succeeded without credentials")
	}
}

// TestApp_Client_Singleton verifies Client() reuses one instance.
func TestApp_Client_Singleton(t *testing.T) {
	app, err := New("dev", "none", "none")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	app.config.BaseURL = "https://forum.example.org"
	app.config.APIKey = "secret"

	c1, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed: %v", err)
	}
	c2, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed on second call: %v", err)
	}
	if c1 != c2 {
		t.Error("Client() returned different instances")
	}
}

// TestExecute_Version verifies command wiring end to end.
func TestExecute_Version(t *testing.T) {
	app, err := New("9.9.9", "abc123", "2024-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	root := app.createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out.String(), "icsync 9.9.9") {
		t.Errorf("version output missing version: %q", out.String())
	}
}

// TestResolveCalendars verifies the flag combinations.
func TestResolveCalendars(t *testing.T) {
	app, err := New("dev", "none", "none")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := app.resolveCalendars(syncFlags{}); err == nil {
		t.Error("resolveCalendars accepted empty flags")
	}
	if _, err := app.resolveCalendars(syncFlags{manifest: "a.yaml", source: "b.ics"}); err == nil {
		t.Error("resolveCalendars accepted both --calendars and --source")
	}

	cals, err := app.resolveCalendars(syncFlags{source: "feed.ics", category: 7, timeOnly: true})
	if err != nil {
		t.Fatalf("resolveCalendars failed: %v", err)
	}
	if len(cals) != 1 || cals[0].Source != "feed.ics" || cals[0].CategoryID != 7 || !cals[0].TimeOnly {
		t.Errorf("resolveCalendars = %+v", cals)
	}
}

// TestCombineTags verifies the merged tag list is independent of the
// manifest slice's backing array.
func TestCombineTags(t *testing.T) {
	calTags := make([]string, 1, 4)
	calTags[0] = "events"

	got := combineTags(calTags, []string{"extra"})
	if len(got) != 2 || got[0] != "events" || got[1] != "extra" {
		t.Fatalf("combineTags = %v", got)
	}

	// Growing the original within its spare capacity must not clobber
	// the combined list.
	calTags = append(calTags, "later")
	if got[1] != "extra" {
		t.Errorf("combined list aliased the input: %v", got)
	}

	if got := combineTags(nil, nil); len(got) != 0 {
		t.Errorf("combineTags(nil, nil) = %v", got)
	}
}
