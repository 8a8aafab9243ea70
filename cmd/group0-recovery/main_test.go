package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStringListFlag(t *testing.T) {
	var s stringList
	if err := s.Set("10.0.0.1, 10.0.0.2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("10.0.0.3"); err != nil {
		t.Fatal(err)
	}
	if got := s.String(); got != "10.0.0.1,10.0.0.2,10.0.0.3" {
		t.Errorf("unexpected list %q", got)
	}
}

func TestBuildFileConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.yaml")
	content := `
cluster:
  contact_points: [10.0.0.9]
ssh:
  user: admin
  key: /keys/id
recovery:
  leader_timeout: 10m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	opts, err := parseFlags([]string{
		"--config", path,
		"--node", "10.0.0.1,10.0.0.2",
		"--user", "scylla",
		"--leader-timeout", "2m",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}

	fc, err := buildFileConfig(opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Cluster.ContactPoints) != 2 || fc.Cluster.ContactPoints[0] != "10.0.0.1" {
		t.Errorf("expected contact points from flags, got %v", fc.Cluster.ContactPoints)
	}
	if fc.SSH.User != "scylla" {
		t.Errorf("expected user override, got %s", fc.SSH.User)
	}
	if fc.SSH.Key != "/keys/id" {
		t.Errorf("expected key from file, got %s", fc.SSH.Key)
	}

	config, err := fc.ToOrchestratorConfig()
	if err != nil {
		t.Fatal(err)
	}
	if config.LeaderTimeout != 2*time.Minute {
		t.Errorf("expected leader timeout 2m, got %v", config.LeaderTimeout)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, []string{"10.0.0.1"}); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "10.0.0.1") {
			t.Error("expected contact points in prompt")
		}
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--version"}, strings.NewReader(""), &stdout, &stderr); code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "group0-recovery version") {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestRunListPresets(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--list-presets"}, strings.NewReader(""), &stdout, &stderr); code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, name := range []string{"entry-loss", "leader-timeout", "degraded"} {
		if !strings.Contains(stdout.String(), name) {
			t.Errorf("expected preset %s in output", name)
		}
	}
}

func TestRunInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer

	// 接続先なし
	if code := run([]string{"--yes"}, strings.NewReader(""), &stdout, &stderr); code != exitInvalid {
		t.Errorf("expected exit 2, got %d", code)
	}
	if code := run([]string{"--simulate", "nope"}, strings.NewReader(""), &stdout, &stderr); code != exitInvalid {
		t.Errorf("expected exit 2 for unknown preset, got %d", code)
	}
	if code := run([]string{"--bogus"}, strings.NewReader(""), &stdout, &stderr); code != exitInvalid {
		t.Errorf("expected exit 2 for unknown flag, got %d", code)
	}
}

func TestRunDeclined(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--simulate", "entry-loss"}, strings.NewReader("n\n"), &stdout, &stderr)
	if code != exitFailed {
		t.Errorf("expected exit 1, got %d", code)
	}
	if strings.Contains(stdout.String(), "RECOVERY REPORT") {
		t.Error("run must not start when declined")
	}
}

func TestRunSimulated(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--simulate", "entry-loss", "--yes", "--log-level", "error"}, strings.NewReader(""), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d\n%s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "GROUP 0 RECOVERY REPORT: SUCCEEDED") {
		t.Errorf("expected report in output:\n%s", stdout.String())
	}
}

func TestRunSimulatedAbort(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--simulate", "leader-timeout", "--yes", "--log-level", "error",
		"--leader-timeout", "300ms",
	}, strings.NewReader(""), &stdout, &stderr)
	if code != exitFailed {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), "ABORTED") {
		t.Errorf("expected aborted report:\n%s", stdout.String())
	}
}
