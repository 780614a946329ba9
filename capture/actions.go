package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/scrollsnap/models"
)

// actionTimeout is the per-action deadline.
const actionTimeout = 10 * time.Second

// validateActions reports the first action missing a field its type needs.
func validateActions(actions []models.Action) error {
	for i, a := range actions {
		switch a.Type {
		case "click":
			if a.Selector == "" {
				return models.InvalidInput("action %d: click requires a selector", i)
			}
		case "execute_js":
			if a.Code == "" {
				return models.InvalidInput("action %d: execute_js requires code", i)
			}
		case "wait":
			if a.Selector == "" && a.Milliseconds <= 0 {
				return models.InvalidInput("action %d: wait requires a selector or milliseconds", i)
			}
		default:
			return models.InvalidInput("action %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}

// runActions executes actions in order. A failure reports which action
// failed and how many completed.
func runActions(ctx context.Context, page *rod.Page, actions []models.Action) error {
	for i, action := range actions {
		if err := runAction(ctx, page, action); err != nil {
			return models.NewIngestError(
				models.ErrCodeActionFailed,
				fmt.Sprintf("action %d (%s) failed after %d completed", i, action.Type, i),
				err,
			)
		}
	}
	return nil
}

func runAction(ctx context.Context, page *rod.Page, action models.Action) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case "wait":
		if action.Selector != "" {
			return p.WaitElementsMoreThan(action.Selector, 0)
		}
		select {
		case <-time.After(time.Duration(action.Milliseconds) * time.Millisecond):
			return nil
		case <-actionCtx.Done():
			return actionCtx.Err()
		}
	case "click":
		el, err := p.Element(action.Selector)
		if err != nil {
			return fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	case "execute_js":
		_, err := p.Eval(action.Code)
		return err
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}
