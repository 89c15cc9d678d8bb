package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Action is an asynchronous operation record returned by the actions API.
type Action struct {
	ID           int    `json:"id"`
	Status       string `json:"status"`
	Type         string `json:"type"`
	ResourceID   int    `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	Region       *struct {
		Slug string `json:"slug"`
	} `json:"region"`
}

// Action statuses reported by the API.
const (
	actionInProgress = "in-progress"
	actionCompleted  = "completed"
	actionErrored    = "errored"
)

// waitForAction polls an action until it completes. An errored action is a
// permanent failure; exhausting the wait budget is a timeout. The wait is
// recorded against the resource type the action reports.
func waitForAction(ctx context.Context, client *doapi.Client, actionID int, cfg engine.WaitConfig, what string) error {
	path := fmt.Sprintf("/actions/%d", actionID)
	start := time.Now()
	resourceType := "unknown"
	err := engine.Poll(ctx, cfg, what, func(ctx context.Context) (bool, error) {
		var out struct {
			Action Action `json:"action"`
		}
		if err := client.Get(ctx, path, nil, &out); err != nil {
			return false, err
		}
		if out.Action.ResourceType != "" {
			resourceType = out.Action.ResourceType
		}
		switch out.Action.Status {
		case actionCompleted:
			return true, nil
		case actionErrored:
			return false, engine.NewPermanentError(
				fmt.Sprintf("%s: action %d errored", what, actionID), nil)
		default:
			return false, nil
		}
	})

	outcome := actionCompleted
	switch {
	case err == nil:
	case engine.IsTimeout(err):
		outcome = "timeout"
	default:
		outcome = actionErrored
	}
	telemetry.RecordActionWaitOutcome(ctx, resourceType, outcome, time.Since(start))
	return err
}
