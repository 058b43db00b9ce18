package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accord/internal/domain"
	"accord/internal/engine"
)

func goalCmd() *cobra.Command {
	goal := &cobra.Command{Use: "goal", Short: "Manage goals"}
	goal.AddCommand(goalCreateCmd())
	goal.AddCommand(goalListCmd())
	goal.AddCommand(goalShowCmd())
	goal.AddCommand(goalUpdateCmd())
	goal.AddCommand(goalActivateCmd())
	goal.AddCommand(goalProgressCmd())
	goal.AddCommand(goalDeleteCmd())
	goal.AddCommand(goalSubtaskCmd())
	return goal
}

func goalCreateCmd() *cobra.Command {
	var opts engine.GoalCreateOptions
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a goal and check it against the family's other goals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				opts.FamilyID = f.ID
				opts.Title = args[0]
				opts.ActorID = actorID()
				g, conflicts, err := e.CreateGoal(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"goal": g, "conflicts": conflicts})
				}
				fmt.Printf("Created goal %s (%s)\n", g.ID, g.Status)
				printConflicts(conflicts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "goal id (generated when empty)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Type, "type", "", "FAMILY or PERSONAL")
	cmd.Flags().StringVar(&opts.Horizon, "horizon", "", "SHORT, MID or LONG")
	cmd.Flags().StringSliceVarP(&opts.Resources, "resource", "r", nil, "resource needed (repeatable): MONEY, TIME, GEO, ENERGY, RISK")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Metric, "metric", "", "how success is measured")
	return cmd
}

func goalListCmd() *cobra.Command {
	var status, owner string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the family's goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				items, err := e.ListGoals(ctx, engine.GoalListOptions{
					FamilyID: f.ID,
					Status:   status,
					OwnerID:  owner,
					Limit:    limit,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Owner", "Status", "Resources", "Progress", "Updated")
				for _, g := range items {
					tw.AppendRow([]any{g.ID, g.Title, g.OwnerID, g.Status, joinResources(g.Resources), fmt.Sprintf("%d%%", g.Progress), ago(g.UpdatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner")
	cmd.Flags().IntVar(&limit, "limit", 0, "max goals to list")
	return cmd
}

func goalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a goal and its conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.GetGoal(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				conflicts, err := e.ListConflicts(ctx, engine.ConflictListOptions{FamilyID: g.FamilyID, GoalID: g.ID, ActorID: actorID()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"goal": g, "conflicts": conflicts})
				}
				fmt.Printf("%s  %s\n", g.ID, g.Title)
				fmt.Printf("Owner: %s  Status: %s  Progress: %d%%\n", g.OwnerID, g.Status, g.Progress)
				fmt.Printf("Type: %s  Horizon: %s  Resources: %s\n", g.Type, g.Horizon, joinResources(g.Resources))
				if g.Deadline != "" {
					fmt.Printf("Deadline: %s\n", g.Deadline)
				}
				if g.Metric != "" {
					fmt.Printf("Metric: %s\n", g.Metric)
				}
				if g.Description != "" {
					fmt.Println(g.Description)
				}
				if len(conflicts) > 0 {
					tw := newTable("Conflict", "Type", "Shared", "With", "Status")
					for _, c := range conflicts {
						other := c.GoalBID
						if other == g.ID {
							other = c.GoalAID
						}
						tw.AppendRow([]any{c.ID, c.Type, joinResources(c.SharedResources), other, c.Status})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

func goalUpdateCmd() *cobra.Command {
	var title, description, goalType, horizon, deadline, metric string
	var resources []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a goal; changing resources re-runs detection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.GoalUpdateOptions{
				ID:          args[0],
				Title:       optionalString(cmd, "title", title),
				Description: optionalString(cmd, "description", description),
				Type:        optionalString(cmd, "type", goalType),
				Horizon:     optionalString(cmd, "horizon", horizon),
				Deadline:    optionalString(cmd, "deadline", deadline),
				Metric:      optionalString(cmd, "metric", metric),
				ActorID:     actorID(),
			}
			if cmd.Flags().Changed("resource") {
				opts.Resources = &resources
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, conflicts, err := e.UpdateGoal(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"goal": g, "conflicts": conflicts})
				}
				fmt.Printf("Updated goal %s (%s)\n", g.ID, g.Status)
				printConflicts(conflicts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&goalType, "type", "", "FAMILY or PERSONAL")
	cmd.Flags().StringVar(&horizon, "horizon", "", "SHORT, MID or LONG")
	cmd.Flags().StringSliceVarP(&resources, "resource", "r", nil, "replace resources (repeatable)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD, empty clears)")
	cmd.Flags().StringVar(&metric, "metric", "", "metric")
	return cmd
}

func goalActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Move a DRAFT goal to ACTIVE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.ActivateGoal(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
}

func goalProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id> <percent>",
		Short: "Record progress; 100 completes the goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.Atoi(strings.TrimSuffix(args[1], "%"))
			if err != nil {
				return fmt.Errorf("%w: progress must be a number", domain.ErrInvalidInput)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.UpdateGoalProgress(ctx, args[0], pct, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("%s %d%% (%s)\n", g.ID, g.Progress, g.Status)
				return nil
			})
		},
	}
}

func goalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a goal with no open conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteGoal(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Deleted goal %s\n", args[0])
				return nil
			})
		},
	}
}

func joinResources(rs domain.ResourceSet) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}
