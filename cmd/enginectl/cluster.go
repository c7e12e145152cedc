package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clustersmith/enginecore/internal/types"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage clusters",
}

var (
	clusterParentID  string
	clusterProfileID string
	clusterWait      bool
)

func init() {
	clusterCreateCmd.Flags().StringVar(&clusterParentID, "parent", "", "parent cluster id for a nested cluster")
	clusterCreateCmd.Flags().StringVar(&clusterProfileID, "profile", "", "profile id the cluster's nodes are built from")
	clusterCreateCmd.Flags().BoolVar(&clusterWait, "wait", false, "block until the CLUSTER_CREATE action completes")
	clusterScaleCmd.Flags().BoolVar(&clusterWait, "wait", false, "block until the CLUSTER_SCALE action completes")

	clusterCmd.AddCommand(clusterCreateCmd, clusterListCmd, clusterShowCmd, clusterDeleteCmd, clusterScaleCmd, clusterSuspendCmd, clusterResumeCmd)
}

var clusterCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Submit a CLUSTER_CREATE action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, reg := openRegistry()
		defer st.Close()

		inputs, err := json.Marshal(map[string]string{
			"ProjectID": projectID,
			"Name":      args[0],
			"ParentID":  clusterParentID,
			"ProfileID": clusterProfileID,
		})
		if err != nil {
			return err
		}

		a, err := reg.Submit(context.Background(), uuid.NewString(), types.TargetCluster, types.VerbClusterCreate, string(inputs), nil)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s (cluster %s)\n", a.ID, a.TargetID)
		if clusterWait {
			waitForAction(st, a.ID, waitTimeout)
		}
		return nil
	},
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clusters in the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		clusters, err := st.ClusterGetAll(context.Background(), projectID, types.ListOptions{SortKeys: []string{"created_at"}}, types.ClusterFilter{})
		if err != nil {
			return err
		}
		if jsonOutput {
			b, _ := json.MarshalIndent(clusters, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		for _, c := range clusters {
			fmt.Printf("%s  %-20s  %-10s  size=%d\n", c.ID, c.Name, c.Status, c.Size)
		}
		return nil
	},
}

var clusterShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		c, err := st.ClusterGet(context.Background(), args[0], projectID, false)
		if err != nil {
			return err
		}
		b, _ := json.MarshalIndent(c, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}

var clusterDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Submit a CLUSTER_DELETE action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, reg := openRegistry()
		defer st.Close()

		a, err := reg.Submit(context.Background(), args[0], types.TargetCluster, types.VerbClusterDelete, "", nil)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s\n", a.ID)
		return nil
	},
}

var clusterScaleCmd = &cobra.Command{
	Use:   "scale <id> <desired-size>",
	Short: "Submit a CLUSTER_SCALE action",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var desired int
		if _, err := fmt.Sscanf(args[1], "%d", &desired); err != nil {
			return fmt.Errorf("invalid desired size %q: %w", args[1], err)
		}

		st, reg := openRegistry()
		defer st.Close()

		inputs, _ := json.Marshal(map[string]int{"DesiredSize": desired})
		a, err := reg.Submit(context.Background(), args[0], types.TargetCluster, types.VerbClusterScale, string(inputs), nil)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s\n", a.ID)
		if clusterWait {
			waitForAction(st, a.ID, waitTimeout)
		}
		return nil
	},
}

var clusterSuspendCmd = &cobra.Command{
	Use:   "suspend <id>",
	Short: "Submit a CLUSTER_SUSPEND action",
	Args:  cobra.ExactArgs(1),
	RunE:  submitBareAction(types.VerbClusterSuspend, types.TargetCluster),
}

var clusterResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Submit a CLUSTER_RESUME action",
	Args:  cobra.ExactArgs(1),
	RunE:  submitBareAction(types.VerbClusterResume, types.TargetCluster),
}

// submitBareAction builds a RunE for verbs that take the target id as
// their only argument and no inputs.
func submitBareAction(verb types.ActionVerb, targetType types.TargetType) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, reg := openRegistry()
		defer st.Close()

		a, err := reg.Submit(context.Background(), args[0], targetType, verb, "", nil)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s\n", a.ID)
		return nil
	}
}
