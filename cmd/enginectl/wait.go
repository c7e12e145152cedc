package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clustersmith/enginecore/internal/store"
	"github.com/clustersmith/enginecore/internal/types"
)

// waitForAction polls id until it reaches a terminal status or timeout
// elapses, printing its outcome. Submitting an action only queues it;
// nothing in this process runs it, so this is plain polling, not a
// blocking call the store offers directly.
func waitForAction(st store.Store, id string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		a, err := st.ActionGet(ctx, id)
		if err != nil {
			FatalError("failed to poll action %s: %v", id, err)
		}
		if a.Status.IsTerminal() {
			printActionOutcome(a)
			return
		}
		select {
		case <-ctx.Done():
			fmt.Println(warnStyle.Render(fmt.Sprintf("timed out waiting for action %s (last status %s)", id, a.Status)))
			return
		case <-ticker.C:
		}
	}
}

func printActionOutcome(a *types.Action) {
	if jsonOutput {
		b, _ := json.MarshalIndent(a, "", "  ")
		fmt.Println(string(b))
		return
	}
	switch a.Status {
	case types.ActionSucceeded:
		fmt.Println(passStyle.Render(fmt.Sprintf("action %s succeeded: %s", a.ID, a.Outputs)))
	default:
		fmt.Printf("action %s %s: %s\n", a.ID, styleStatus(a.Status), a.StatusReason)
	}
}
