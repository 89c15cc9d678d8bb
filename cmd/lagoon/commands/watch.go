package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	var (
		policyMode string
		policyDirs []string
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [manifest...]",
		Short: "Watch manifests and re-plan on change",
		Long: `Watch the given manifest files or directories and re-run a check-mode
reconcile whenever a .cue file changes. No mutating API calls are made;
the output shows what an apply would change.

Rapid bursts of file events are debounced into one run.`,
		Example: `  # Watch the current directory
  lagoon watch

  # Watch a manifest directory with enforcing policies
  lagoon watch --policy-mode enforcing infra/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Watch always plans; it never mutates.
			checkMode = true

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			sources := args
			if len(sources) == 0 {
				sources = []string{"."}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			for _, source := range sources {
				dir := source
				if info, err := os.Stat(source); err == nil && !info.IsDir() {
					dir = filepath.Dir(source)
				}
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("watch %s: %w", dir, err)
				}
			}

			ctx := cmd.Context()
			runPlan := func() {
				manifest, err := loadManifest(sources)
				if err != nil {
					a.log().WithError(err).Error("manifest parse failed")
					return
				}
				if _, err := a.checkPolicies(ctx, manifest, policy.Mode(policyMode), policyDirs); err != nil {
					a.log().WithError(err).Error("policy check failed")
					return
				}
				summary, err := a.runManifest(ctx, "plan", manifest, false)
				if summary != nil {
					_ = report(summary)
				}
				if err != nil {
					a.log().WithError(err).Error("plan failed")
				}
			}

			a.log().Info("watching for manifest changes")
			runPlan()

			var pending *time.Timer
			fire := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !strings.HasSuffix(event.Name, ".cue") {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
						continue
					}
					a.log().WithField("file", event.Name).Debug("manifest changed")
					if pending != nil {
						pending.Stop()
					}
					pending = time.AfterFunc(debounce, func() {
						select {
						case fire <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					a.log().WithError(err).Warn("watcher error")
				case <-fire:
					if ctx.Err() != nil {
						return nil
					}
					runPlan()
				}
			}
		},
	}

	cmd.Flags().StringVar(&policyMode, "policy-mode", string(policy.ModeAdvisory), "policy enforcement mode (advisory, enforcing)")
	cmd.Flags().StringSliceVar(&policyDirs, "policy-dir", nil, "directories with additional .rego policies")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before re-planning")

	return cmd
}
