package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clustersmith/enginecore/internal/types"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage nodes",
}

var (
	nodeProfileID string
	nodeWait      bool
)

func init() {
	nodeCreateCmd.Flags().StringVar(&nodeProfileID, "profile", "", "profile id the node is built from")
	nodeCreateCmd.Flags().BoolVar(&nodeWait, "wait", false, "block until the NODE_CREATE action completes")

	nodeCmd.AddCommand(nodeCreateCmd, nodeListCmd, nodeShowCmd, nodeDeleteCmd, nodeJoinCmd, nodeLeaveCmd)
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create <cluster-id> <name>",
	Short: "Submit a NODE_CREATE action",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, reg := openRegistry()
		defer st.Close()

		inputs, _ := json.Marshal(map[string]string{
			"ClusterID": args[0],
			"Name":      args[1],
			"ProfileID": nodeProfileID,
		})
		a, err := reg.Submit(context.Background(), uuid.NewString(), types.TargetNode, types.VerbNodeCreate, string(inputs), nil)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s (node %s)\n", a.ID, a.TargetID)
		if nodeWait {
			waitForAction(st, a.ID, waitTimeout)
		}
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list <cluster-id>",
	Short: "List a cluster's nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		nodes, err := st.NodeGetAllByCluster(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			b, _ := json.MarshalIndent(nodes, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		for _, n := range nodes {
			fmt.Printf("%s  %-20s  %-10s\n", n.ID, n.Name, n.Status)
		}
		return nil
	},
}

var nodeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		n, err := st.NodeGet(context.Background(), args[0])
		if err != nil {
			return err
		}
		b, _ := json.MarshalIndent(n, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Submit a NODE_DELETE action",
	Args:  cobra.ExactArgs(1),
	RunE:  submitBareAction(types.VerbNodeDelete, types.TargetNode),
}

var nodeJoinCmd = &cobra.Command{
	Use:   "join <node-id> <cluster-id>",
	Short: "Submit a NODE_JOIN_CLUSTER action",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, reg := openRegistry()
		defer st.Close()

		inputs, _ := json.Marshal(map[string]string{"ClusterID": args[1]})
		a, err := reg.Submit(context.Background(), args[0], types.TargetNode, types.VerbNodeJoinCluster, string(inputs), nil)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s\n", a.ID)
		return nil
	},
}

var nodeLeaveCmd = &cobra.Command{
	Use:   "leave <node-id>",
	Short: "Submit a NODE_LEAVE_CLUSTER action",
	Args:  cobra.ExactArgs(1),
	RunE:  submitBareAction(types.VerbNodeLeaveCluster, types.TargetNode),
}
