package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/resources"
	"github.com/openlagoon/openlagoon/pkg/transports/ssh"
)

func newOnboardCommand() *cobra.Command {
	var (
		host       string
		droplet    string
		user       string
		port       int
		keyPath    string
		scriptPath string
		waitFor    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Onboard a droplet over SSH",
		Long: `Connect to a host over SSH, optionally run a bootstrap script, and
gather host facts. The target is either an address (--host) or a droplet
name (--droplet), resolved to its public IPv4 via the API.

The connection is retried until the host answers or the wait budget runs
out; a droplet that just went active usually needs a few attempts.`,
		Example: `  # Onboard by address with a bootstrap script
  lagoon onboard --host 203.0.113.10 --script bootstrap.sh

  # Onboard a droplet by name
  lagoon onboard --droplet web-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (host == "") == (droplet == "") {
				return engine.NewValidationError("exactly one of --host or --droplet is required")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if droplet != "" {
				client, err := a.api()
				if err != nil {
					return err
				}
				d, err := resources.FindDropletByName(ctx, client, droplet)
				if err != nil {
					return err
				}
				if d == nil {
					return engine.NewValidationError(fmt.Sprintf("droplet %q not found", droplet))
				}
				host = d.PublicIPv4()
				if host == "" {
					return engine.NewValidationError(fmt.Sprintf("droplet %q has no public IPv4 yet", droplet))
				}
			}

			cfg := ssh.DefaultConfig(host)
			cfg.User = user
			cfg.Port = port
			cfg.PrivateKeyPath = keyPath
			if waitFor > 0 {
				cfg.Wait = engine.WaitConfig{Timeout: waitFor, SleepInterval: 5 * time.Second}
			}

			onboarder, err := ssh.NewOnboarder(cfg, a.tel.Logger)
			if err != nil {
				return err
			}
			if scriptPath != "" {
				script, err := os.ReadFile(scriptPath)
				if err != nil {
					return fmt.Errorf("read bootstrap script: %w", err)
				}
				onboarder.Bootstrap = script
			}

			result, err := onboarder.Run(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(result)
			}
			fmt.Fprintf(os.Stdout, "Host %s onboarded in %s\n", result.Host, result.Duration.Round(time.Millisecond))
			fmt.Fprintf(os.Stdout, "  hostname: %s\n", result.Facts.Hostname)
			fmt.Fprintf(os.Stdout, "  os:       %s %s\n", result.Facts.OSName, result.Facts.OSVersion)
			fmt.Fprintf(os.Stdout, "  kernel:   %s (%s)\n", result.Facts.Kernel, result.Facts.Architecture)
			if result.BootstrapRan {
				fmt.Fprintln(os.Stdout, "  bootstrap: ok")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "target address")
	cmd.Flags().StringVar(&droplet, "droplet", "", "target droplet name (resolved via the API)")
	cmd.Flags().StringVar(&user, "user", ssh.DefaultUser, "SSH user")
	cmd.Flags().IntVar(&port, "port", ssh.DefaultPort, "SSH port")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key path (defaults to ~/.ssh keys)")
	cmd.Flags().StringVar(&scriptPath, "script", "", "bootstrap script to upload and run")
	cmd.Flags().DurationVar(&waitFor, "wait", 0, "how long to wait for SSH to become reachable")

	return cmd
}
