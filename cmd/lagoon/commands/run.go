package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openlagoon/openlagoon/pkg/config"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/policy"
	"github.com/openlagoon/openlagoon/pkg/resources"
	"github.com/openlagoon/openlagoon/pkg/stores"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// resourceOutcome is the per-resource result of a manifest run.
type resourceOutcome struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Changed bool   `json:"changed"`
	Msg     string `json:"msg,omitempty"`
	Error   string `json:"error,omitempty"`
}

// runSummary is the aggregate result of a manifest run.
type runSummary struct {
	Operation  string             `json:"operation"`
	CheckMode  bool               `json:"check_mode"`
	Resources  []resourceOutcome  `json:"resources"`
	Changed    int                `json:"changed"`
	Failed     int                `json:"failed"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Duration   string             `json:"duration"`
}

// loadManifest parses manifest sources, defaulting to the current directory.
func loadManifest(sources []string) (*config.Manifest, error) {
	if len(sources) == 0 {
		sources = []string{"."}
	}
	return config.NewParser().Load(sources...)
}

// checkPolicies evaluates policies against the manifest. Violations are
// returned for reporting; a blocked result is an error.
func (a *app) checkPolicies(ctx context.Context, manifest *config.Manifest, mode policy.Mode, dirs []string) (*policy.Result, error) {
	eng, err := policy.NewEngine(mode, a.log())
	if err != nil {
		return nil, err
	}
	if len(dirs) > 0 {
		if err := eng.LoadPolicies(ctx, dirs); err != nil {
			return nil, err
		}
	}
	result, err := eng.EvaluateManifest(ctx, manifest)
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		a.log().Warn(w)
	}
	for _, v := range result.Violations {
		log := a.log().WithFields(map[string]any{"policy": v.Policy, "resource": v.Resource})
		switch v.Severity {
		case policy.SeverityError:
			log.Error(v.Message)
		case policy.SeverityWarning:
			log.Warn(v.Message)
		default:
			log.Info(v.Message)
		}
	}
	if !result.Allowed {
		return result, fmt.Errorf("blocked by policy: %d error-severity violation(s)", len(result.Blocking()))
	}
	return result, nil
}

// runManifest reconciles every resource in the manifest sequentially. With
// forceAbsent every resource is driven to absent regardless of its declared
// state, in reverse declaration order.
func (a *app) runManifest(ctx context.Context, operation string, manifest *config.Manifest, forceAbsent bool) (*runSummary, error) {
	start := time.Now()
	ctx = a.tel.WithContext(ctx)
	client, err := a.api()
	if err != nil {
		return nil, err
	}
	registry := a.newRegistry()
	opts := a.moduleOptions(client)

	var store *stores.SQLiteStore
	if !checkMode {
		if store, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}

	decls := manifest.Resources
	if forceAbsent {
		decls = make([]config.ResourceDecl, len(manifest.Resources))
		for i, decl := range manifest.Resources {
			decl.State = engine.StateAbsent
			decls[len(decls)-1-i] = decl
		}
	}

	summary := &runSummary{Operation: operation, CheckMode: checkMode}
	for i := range decls {
		decl := &decls[i]
		outcome := a.reconcileOne(ctx, registry, opts, store, operation, decl)
		summary.Resources = append(summary.Resources, outcome)
		if outcome.Changed {
			summary.Changed++
		}
		if outcome.Error != "" {
			summary.Failed++
		}
	}
	summary.Duration = time.Since(start).Round(time.Millisecond).String()

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d resources failed", summary.Failed, len(summary.Resources))
	}
	return summary, nil
}

func (a *app) reconcileOne(ctx context.Context, registry *resources.Registry, opts resources.Options, store *stores.SQLiteStore, operation string, decl *config.ResourceDecl) resourceOutcome {
	outcome := resourceOutcome{Type: decl.Type, Name: decl.Name, State: string(decl.State)}
	log := a.log().WithResource(decl.Type, decl.Name)

	module, err := registry.Build(decl.Type, opts)
	if err != nil {
		outcome.Error = err.Error()
		log.WithError(err).Error("unknown resource type")
		return outcome
	}

	spec, err := decl.SpecJSON()
	if err != nil {
		outcome.Error = err.Error()
		log.WithError(err).Error("invalid resource spec")
		return outcome
	}

	runID := uuid.NewString()
	if store != nil {
		run := &stores.Run{
			ID:           runID,
			ResourceType: decl.Type,
			ResourceName: decl.Name,
			Operation:    operation,
			Status:       stores.RunStatusRunning,
			StartedAt:    time.Now().UTC(),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			log.WithError(err).Warn("could not record run")
			store = nil
		}
	}

	ic := telemetry.StartOperation(ctx, "reconcile",
		attribute.String("resource.type", decl.Type),
		attribute.String("resource.name", decl.Name))
	result, err := module.Reconcile(ic.Ctx, resources.Request{
		Name:  decl.Name,
		State: decl.State,
		Spec:  spec,
	})
	ic.End(err)
	if err != nil {
		outcome.Error = err.Error()
		log.WithRunID(runID).WithError(err).Error("reconcile failed")
		var errClass, errCode string
		var engErr *engine.Error
		if errors.As(err, &engErr) {
			errClass, errCode = string(engErr.Class), engErr.Code
		}
		telemetry.RecordReconcileOutcome(ctx, decl.Type, false, ic.Timer, errClass, errCode)
		if store != nil {
			msg := err.Error()
			if err := store.CompleteRun(ctx, runID, stores.RunStatusFailed, false, &msg); err != nil {
				log.WithError(err).Warn("could not record run completion")
			}
		}
		return outcome
	}

	outcome.Changed = result.Changed
	outcome.Msg = result.Msg
	telemetry.RecordReconcileOutcome(ctx, decl.Type, result.Changed, ic.Timer, "", "")
	if store != nil {
		if err := store.CompleteRun(ctx, runID, stores.RunStatusCompleted, result.Changed, nil); err != nil {
			log.WithError(err).Warn("could not record run completion")
		}
	}

	if result.Changed {
		log.WithRunID(runID).Info(result.Msg)
	} else {
		log.WithRunID(runID).Debug("no change")
	}
	return outcome
}

// report prints the run summary in the configured format.
func report(summary *runSummary) error {
	if jsonOutput {
		return printJSON(summary)
	}
	for _, r := range summary.Resources {
		status := "ok"
		switch {
		case r.Error != "":
			status = "failed"
		case r.Changed:
			status = "changed"
		}
		line := fmt.Sprintf("%-8s %s/%s", status, r.Type, r.Name)
		if r.Msg != "" {
			line += ": " + r.Msg
		}
		if r.Error != "" {
			line += ": " + r.Error
		}
		fmt.Fprintln(os.Stdout, line)
	}
	fmt.Fprintf(os.Stdout, "\n%s complete: %d resources, %d changed, %d failed (%s)\n",
		summary.Operation, len(summary.Resources), summary.Changed, summary.Failed, summary.Duration)
	return nil
}
