package cli

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAwardLevelStreak(t *testing.T) {
	t.Setenv("FLUENTIA_HOME", t.TempDir())

	out, err := run(t, "award", "--user", "u1", "--source", "grammar", "--slug", "past-simple-01",
		"--answers", "10", "--date", "2024-01-10")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if !strings.Contains(out, "+10 XP") {
		t.Errorf("award output = %q", out)
	}
	if !strings.Contains(out, "First Steps") {
		t.Errorf("expected First Steps badge, got %q", out)
	}

	out, err = run(t, "award", "--user", "u1", "--source", "grammar", "--slug", "past-simple-01",
		"--answers", "10", "--date", "2024-01-11")
	if err != nil {
		t.Fatalf("repeat award: %v", err)
	}
	if !strings.Contains(out, "Already completed") {
		t.Errorf("repeat output = %q", out)
	}

	out, err = run(t, "level", "--user", "u1")
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if !strings.Contains(out, "u1") || !strings.Contains(out, "90") {
		t.Errorf("level output = %q", out)
	}

	out, err = run(t, "streak", "--user", "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if !strings.Contains(out, "2024-01-10") {
		t.Errorf("streak output = %q", out)
	}

	out, err = run(t, "badges", "--user", "u1")
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	if !strings.Contains(out, "first-steps") {
		t.Errorf("badges output = %q", out)
	}

	out, err = run(t, "reconcile")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(out, "agree") {
		t.Errorf("reconcile output = %q", out)
	}
}

func TestAward_Errors(t *testing.T) {
	t.Setenv("FLUENTIA_HOME", t.TempDir())

	if _, err := run(t, "award", "--user", "", "--source", "grammar", "--slug", "a", "--date", ""); err == nil {
		t.Error("expected error without --user")
	}
	if _, err := run(t, "award", "--user", "u1", "--source", "chess", "--slug", "e4", "--date", ""); err == nil {
		t.Error("expected error for an unknown source")
	}
}

func TestBadgesCatalog(t *testing.T) {
	t.Setenv("FLUENTIA_HOME", t.TempDir())

	out, err := run(t, "badges", "--user", "")
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	if !strings.Contains(out, "streak-7") || !strings.Contains(out, "streak_at_least 7") {
		t.Errorf("catalog output = %q", out)
	}
}
