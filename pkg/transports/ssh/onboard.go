package ssh

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// DefaultBootstrapPath is where the bootstrap script lands on the host.
const DefaultBootstrapPath = "/opt/lagoon/bootstrap.sh"

// HostFacts is the minimal fact set gathered during onboarding.
type HostFacts struct {
	Hostname      string `json:"hostname"`
	Kernel        string `json:"kernel"`
	Architecture  string `json:"architecture"`
	OSName        string `json:"os_name,omitempty"`
	OSVersion     string `json:"os_version,omitempty"`
	CPUCount      int    `json:"cpu_count,omitempty"`
	MemoryTotalKB int64  `json:"memory_total_kb,omitempty"`
}

// OnboardResult records what happened on the host.
type OnboardResult struct {
	Host            string        `json:"host"`
	Facts           HostFacts     `json:"facts"`
	BootstrapRan    bool          `json:"bootstrap_ran"`
	BootstrapOutput string        `json:"bootstrap_output,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Onboarder connects to a host and brings it under management.
type Onboarder struct {
	cfg *Config
	log *telemetry.Logger

	// Bootstrap is the script content to upload and run. Empty skips the
	// bootstrap step and only facts are gathered.
	Bootstrap []byte

	// BootstrapPath overrides where the script is placed.
	BootstrapPath string
}

// NewOnboarder returns an onboarder for the given target.
func NewOnboarder(cfg *Config, logger *telemetry.Logger) (*Onboarder, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}
	return &Onboarder{cfg: cfg, log: logger.NewComponentLogger("onboard")}, nil
}

// Run waits for the host, uploads and runs the bootstrap script if one is
// set, and gathers host facts.
func (o *Onboarder) Run(ctx context.Context) (*OnboardResult, error) {
	start := time.Now()
	log := o.log.WithField("host", o.cfg.Address())
	log.Info("onboarding host")

	client, err := NewClient(o.cfg, o.log)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()

	result := &OnboardResult{Host: o.cfg.Host}

	if len(o.Bootstrap) > 0 {
		path := o.BootstrapPath
		if path == "" {
			path = DefaultBootstrapPath
		}
		if err := client.Upload(o.Bootstrap, path, 0o755); err != nil {
			return nil, err
		}
		out, _, err := client.Run(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap script failed: %w", err)
		}
		result.BootstrapRan = true
		result.BootstrapOutput = out
		log.WithField("script", path).Info("bootstrap script completed")
	}

	facts, err := gatherFacts(ctx, client)
	if err != nil {
		return nil, err
	}
	result.Facts = *facts
	result.Duration = time.Since(start)

	log.WithFields(map[string]any{
		"hostname": facts.Hostname,
		"os":       facts.OSName,
		"duration": result.Duration.Round(time.Millisecond).String(),
	}).Info("host onboarded")
	return result, nil
}

// runner is the slice of Client that fact gathering needs.
type runner interface {
	Run(ctx context.Context, cmd string) (string, string, error)
}

func gatherFacts(ctx context.Context, c runner) (*HostFacts, error) {
	facts := &HostFacts{}

	out, _, err := c.Run(ctx, "hostname && uname -r && uname -m")
	if err != nil {
		return nil, err
	}
	lines := strings.Split(out, "\n")
	if len(lines) > 0 {
		facts.Hostname = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		facts.Kernel = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		facts.Architecture = strings.TrimSpace(lines[2])
	}

	// Best effort from here on; a minimal image may lack any of these.
	if out, _, err := c.Run(ctx, "cat /etc/os-release"); err == nil {
		name, version := parseOSRelease(out)
		facts.OSName = name
		facts.OSVersion = version
	}
	if out, _, err := c.Run(ctx, "nproc"); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(out)); err == nil {
			facts.CPUCount = n
		}
	}
	if out, _, err := c.Run(ctx, "grep MemTotal /proc/meminfo"); err == nil {
		facts.MemoryTotalKB = parseMemTotal(out)
	}

	return facts, nil
}

// parseOSRelease extracts NAME and VERSION_ID from /etc/os-release content.
func parseOSRelease(content string) (name, version string) {
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "NAME":
			name = value
		case "VERSION_ID":
			version = value
		}
	}
	return name, version
}

// parseMemTotal reads the kB value out of a /proc/meminfo MemTotal line.
func parseMemTotal(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	n, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
