package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/clustersmith/enginecore/internal/actions"
	"github.com/clustersmith/enginecore/internal/types"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Inspect and control Actions",
}

var actionOwner string

func init() {
	actionListCmd.Flags().StringVar(&actionOwner, "owner", "", "only actions owned by this engine id")
	actionCmd.AddCommand(actionListCmd, actionShowCmd, actionCancelCmd, actionWaitCmd)
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List READY actions, or every action owned by one engine with --owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		var list []*types.Action
		var err error
		if actionOwner != "" {
			list, err = st.ActionGetAllByOwner(context.Background(), actionOwner)
		} else {
			list, err = st.ActionGetAllReady(context.Background())
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			b, _ := json.MarshalIndent(list, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		for _, a := range list {
			fmt.Printf("%s  %-22s  %s  %s\n", mutedStyle.Render(a.ID), a.Verb, styleStatus(a.Status), a.TargetID)
		}
		return nil
	},
}

var actionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one action including its dependency edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		a, err := st.ActionGet(context.Background(), args[0])
		if err != nil {
			return err
		}
		b, _ := json.MarshalIndent(a, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}

var actionWaitCmd = &cobra.Command{
	Use:   "wait <id>",
	Short: "Block until an action reaches a terminal status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()
		waitForAction(st, args[0], waitTimeout)
		return nil
	},
}

var actionForce bool

var actionCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel an action and cascade CANCELLED to everything depending on it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !actionForce {
			confirmed := true
			if err := huh.NewConfirm().
				Title(fmt.Sprintf("Cancel action %s? Everything depending on it will cascade to CANCELLED.", args[0])).
				Affirmative("Cancel it").
				Negative("Back out").
				Value(&confirmed).
				Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted")
				return nil
			}
		}

		st := openStore()
		defer st.Close()
		reg := actions.New(st)
		ctx := context.Background()

		a, err := st.ActionGet(ctx, args[0])
		if err != nil {
			return err
		}

		if a.Status == types.ActionRunning {
			// A worker somewhere else in the cluster owns this action's lock
			// right now; force-cancelling it from here would race the
			// worker's own completion and leave the lock dangling. Set the
			// control signal instead: the owning dispatcher observes it at
			// its next control_check, cancels the handler's context, and
			// finalizes the action (and its lock) itself.
			if err := reg.SetControl(ctx, args[0], types.ControlCancel); err != nil {
				return err
			}
			fmt.Println(warnStyle.Render(fmt.Sprintf("cancel requested for %s (running, will finalize at next control check)", args[0])))
			return nil
		}

		if err := reg.MarkCancelled(ctx, args[0], "cancelled by operator"); err != nil {
			return err
		}
		fmt.Println(passStyle.Render(fmt.Sprintf("cancelled %s", args[0])))
		return nil
	},
}

func init() {
	actionCancelCmd.Flags().BoolVar(&actionForce, "force", false, "skip the confirmation prompt")
}
