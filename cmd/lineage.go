package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dcswatch/servertrack/internal/model"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Inspect and review server migration edges",
}

var lineageListLimit int

var lineageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List migration edges awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		edges, err := st.ListPendingLineage(ctx, lineageListLimit)
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			fmt.Println("No pending lineage edges")
			return nil
		}
		for _, e := range edges {
			fmt.Printf("%s  %s -> %s  %s  %.3f\n",
				e.ID, e.CurrentServerID, e.PreviousServerID, e.MatchType, e.SimilarityScore)
		}
		return nil
	},
}

var (
	lineageAccept bool
	lineageReject bool
)

var lineageReviewCmd = &cobra.Command{
	Use:   "review <edge-id>",
	Short: "Confirm or reject a pending migration edge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if lineageAccept == lineageReject {
			return eris.New("exactly one of --accept or --reject is required")
		}
		status := model.LineageStatusConfirmed
		if lineageReject {
			status = model.LineageStatusRejected
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ReviewLineage(ctx, args[0], status); err != nil {
			return err
		}
		fmt.Printf("Edge %s marked %s\n", args[0], status)
		return nil
	},
}

func init() {
	lineageListCmd.Flags().IntVar(&lineageListLimit, "limit", 50, "maximum edges to list")
	lineageReviewCmd.Flags().BoolVar(&lineageAccept, "accept", false, "confirm the edge")
	lineageReviewCmd.Flags().BoolVar(&lineageReject, "reject", false, "reject the edge")
	lineageCmd.AddCommand(lineageListCmd)
	lineageCmd.AddCommand(lineageReviewCmd)
	rootCmd.AddCommand(lineageCmd)
}
