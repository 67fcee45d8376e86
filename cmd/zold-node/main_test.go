package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zoldnode/internal/amount"
	"zoldnode/internal/config"
	"zoldnode/internal/metrics"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func tempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvPassphrase, "")
	t.Setenv("ZOLD_DEBUG", "")
	return home
}

func TestHelp(t *testing.T) {
	code, out, _ := runCmd(t, "--help")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "zold-node") {
		t.Fatalf("expected help output to mention zold-node")
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCmd(t, "mine")
	if code != 1 || !strings.Contains(errOut, "unknown command: mine") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
}

func TestRemotesBook(t *testing.T) {
	tempHome(t)
	if code, _, errOut := runCmd(t, "remotes", "add", "b1.zold.io:4096", "b1"); code != 0 {
		t.Fatalf("add: %s", errOut)
	}
	if code, _, errOut := runCmd(t, "remotes", "add", "b2.zold.io:4096"); code != 0 {
		t.Fatalf("add: %s", errOut)
	}
	code, out, _ := runCmd(t, "remotes", "list")
	if code != 0 {
		t.Fatalf("list failed")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "b1.zold.io:4096 name=b1") {
		t.Fatalf("unexpected list %q", out)
	}
	if code, _, _ := runCmd(t, "remotes", "remove", "b1.zold.io:4096"); code != 0 {
		t.Fatalf("remove failed")
	}
	if code, _, _ := runCmd(t, "remotes", "remove", "b1.zold.io:4096"); code != 1 {
		t.Fatalf("second remove should fail")
	}
	if code, _, _ := runCmd(t, "remotes", "fly"); code != 1 {
		t.Fatalf("unknown subcommand should fail")
	}
}

func TestPullWithoutRemotesFails(t *testing.T) {
	tempHome(t)
	code, _, errOut := runCmd(t, "pull", "00000000000000ff")
	if code != 1 || !strings.Contains(errOut, "pull:") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
}

func TestBadWalletID(t *testing.T) {
	tempHome(t)
	if code, _, errOut := runCmd(t, "balance", "xyz"); code != 1 || !strings.Contains(errOut, "bad wallet id") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
}

func TestStatusReadsSnapshot(t *testing.T) {
	home := tempHome(t)
	m := metrics.New()
	m.IncPullAnswered()
	m.IncPushOK()
	if err := m.WriteSnapshot(filepath.Join(home, "metrics.json")); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	code, out, _ := runCmd(t, "status")
	if code != 0 || !strings.Contains(out, "answered=1") || !strings.Contains(out, "ok=1") {
		t.Fatalf("unexpected status %d %q", code, out)
	}
}

func TestCreatePayBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit keygen")
	}
	home := tempHome(t)
	code, out, errOut := runCmd(t, "create", "--id", "00000000000000a1")
	if code != 0 {
		t.Fatalf("create: %s", errOut)
	}
	if strings.TrimSpace(out) != "00000000000000a1" {
		t.Fatalf("unexpected id %q", out)
	}
	if _, err := os.Stat(filepath.Join(home, "wallets", "00000000000000a1.z")); err != nil {
		t.Fatalf("wallet file: %v", err)
	}
	if code, _, _ := runCmd(t, "create", "--id", "a1"); code != 1 {
		t.Fatalf("second create should fail")
	}
	code, out, errOut = runCmd(t, "pay", "a1", "b2", "1.5", "For food")
	if code != 0 {
		t.Fatalf("pay: %s", errOut)
	}
	want := "balance=" + amount.Format(-(amount.ZentsPerZLD + amount.ZentsPerZLD/2), 2)
	if !strings.Contains(out, "txns=1") || !strings.Contains(out, want) {
		t.Fatalf("unexpected pay output %q", out)
	}
	code, out, _ = runCmd(t, "balance", "a1")
	if code != 0 || !strings.Contains(out, want) {
		t.Fatalf("unexpected balance %q", out)
	}
}
