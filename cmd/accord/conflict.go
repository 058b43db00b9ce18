package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accord/internal/domain"
	"accord/internal/engine"
)

func conflictCmd() *cobra.Command {
	c := &cobra.Command{Use: "conflict", Short: "Inspect and resolve conflicts"}
	c.AddCommand(conflictListCmd())
	c.AddCommand(conflictShowCmd())
	c.AddCommand(conflictDetectCmd())
	c.AddCommand(conflictResolveCmd())
	return c
}

func conflictListCmd() *cobra.Command {
	var status, goalID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				items, err := e.ListConflicts(ctx, engine.ConflictListOptions{
					FamilyID: f.ID,
					Status:   status,
					GoalID:   goalID,
					Limit:    limit,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Type", "Shared", "Goal A", "Goal B", "Status", "Detected")
				for _, c := range items {
					tw.AppendRow([]any{c.ID, c.Type, joinResources(c.SharedResources), c.GoalAID, c.GoalBID, c.Status, ago(c.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "UNRESOLVED or RESOLVED")
	cmd.Flags().StringVar(&goalID, "goal", "", "only conflicts involving this goal")
	cmd.Flags().IntVar(&limit, "limit", 0, "max conflicts to list")
	return cmd
}

func conflictShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conflict with both goals and its resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetConflict(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("%s  %s on %s  (%s)\n", c.ID, c.Type, joinResources(c.SharedResources), c.Status)
				tw := newTable("Side", "Goal", "Title", "Owner", "Status")
				for i, id := range []string{c.GoalAID, c.GoalBID} {
					g, err := e.GetGoal(ctx, id, actorID())
					if err != nil {
						return err
					}
					tw.AppendRow([]any{string(rune('A' + i)), g.ID, g.Title, g.OwnerID, g.Status})
				}
				tw.Render()
				if r := c.Resolution; r != nil {
					fmt.Printf("Resolved by %s: cost %q, compensation %q\n", r.Strategy, r.Cost, r.Compensation)
					if r.ReviewDate != "" {
						fmt.Printf("Review on %s\n", r.ReviewDate)
					}
				}
				return nil
			})
		},
	}
}

func conflictDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <goal-id>",
		Short: "Re-run detection for a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				conflicts, err := e.DetectConflicts(ctx, args[0], f.ID, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(conflicts)
				}
				if len(conflicts) == 0 {
					fmt.Println("No new conflicts")
					return nil
				}
				printConflicts(conflicts)
				return nil
			})
		},
	}
}

func conflictResolveCmd() *cobra.Command {
	var opts engine.ResolveOptions
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a conflict with a strategy, a cost and a compensation",
		Long: `Strategies:
  PRIORITY    goal A goes ahead, goal B is paused
  SEQUENCE    goal A now, goal B after it (paused)
  COMPROMISE  both continue with reduced scope
  TRANSFORM   both are reshaped and continue
  DROP        goal B is dropped`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConflictID = args[0]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ResolveConflict(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Agreement %s: %s\n", a.ID, a.Title)
				fmt.Println(a.Terms)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "PRIORITY, SEQUENCE, COMPROMISE, TRANSFORM or DROP")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what was agreed")
	cmd.Flags().StringVar(&opts.Cost, "cost", "", "what is given up")
	cmd.Flags().StringVar(&opts.Compensation, "compensation", "", "what is given back")
	cmd.Flags().StringVar(&opts.ReviewDate, "review-date", "", "date to revisit the agreement (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}
