package ssh

import (
	"context"
	"testing"
)

type fakeRunner struct {
	responses map[string]string
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, cmd string) (string, string, error) {
	f.calls = append(f.calls, cmd)
	out, ok := f.responses[cmd]
	if !ok {
		return "", "", context.Canceled
	}
	return out, "", nil
}

func TestGatherFacts(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"hostname && uname -r && uname -m": "web-1\n6.8.0-45-generic\nx86_64",
		"cat /etc/os-release": `NAME="Ubuntu"
VERSION="24.04.1 LTS (Noble Numbat)"
ID=ubuntu
VERSION_ID="24.04"`,
		"nproc":                       "2",
		"grep MemTotal /proc/meminfo": "MemTotal:        2013252 kB",
	}}

	facts, err := gatherFacts(context.Background(), r)
	if err != nil {
		t.Fatalf("gatherFacts: %v", err)
	}

	if facts.Hostname != "web-1" {
		t.Errorf("Hostname = %q", facts.Hostname)
	}
	if facts.Kernel != "6.8.0-45-generic" {
		t.Errorf("Kernel = %q", facts.Kernel)
	}
	if facts.Architecture != "x86_64" {
		t.Errorf("Architecture = %q", facts.Architecture)
	}
	if facts.OSName != "Ubuntu" || facts.OSVersion != "24.04" {
		t.Errorf("OS = %q %q", facts.OSName, facts.OSVersion)
	}
	if facts.CPUCount != 2 {
		t.Errorf("CPUCount = %d", facts.CPUCount)
	}
	if facts.MemoryTotalKB != 2013252 {
		t.Errorf("MemoryTotalKB = %d", facts.MemoryTotalKB)
	}
}

func TestGatherFactsDegradesWithoutOptionalCommands(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"hostname && uname -r && uname -m": "minimal\n5.15.0\naarch64",
	}}

	facts, err := gatherFacts(context.Background(), r)
	if err != nil {
		t.Fatalf("gatherFacts: %v", err)
	}
	if facts.Hostname != "minimal" || facts.OSName != "" || facts.CPUCount != 0 {
		t.Errorf("unexpected facts: %+v", facts)
	}
}

func TestParseOSRelease(t *testing.T) {
	name, version := parseOSRelease("NAME=\"Debian GNU/Linux\"\nVERSION_ID=\"12\"\nID=debian")
	if name != "Debian GNU/Linux" || version != "12" {
		t.Errorf("got %q %q", name, version)
	}
}

func TestParseMemTotal(t *testing.T) {
	if got := parseMemTotal("MemTotal: 1024 kB"); got != 1024 {
		t.Errorf("got %d", got)
	}
	if got := parseMemTotal("garbage"); got != 0 {
		t.Errorf("got %d", got)
	}
}
