package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accord/internal/app"
	"accord/internal/domain"
	"accord/internal/engine"
)

func familyCmd() *cobra.Command {
	fam := &cobra.Command{Use: "family", Short: "Manage families and members"}
	fam.AddCommand(familyCreateCmd())
	fam.AddCommand(familyListCmd())
	fam.AddCommand(familyShowCmd())
	fam.AddCommand(familyAddMemberCmd())
	fam.AddCommand(familyUseCmd())
	fam.AddCommand(familySeedCmd())
	return fam
}

func familyCreateCmd() *cobra.Command {
	var opts engine.FamilyCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a family with you as its first member",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.CreateFamily(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "family id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "family name")
	cmd.Flags().StringVar(&opts.NorthStar, "north-star", "", "shared long-term direction")
	cmd.Flags().StringVar(&opts.Role, "role", "", "your role: ADULT, PARTNER or CHILD")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func familyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your families",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListFamilies(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "North star", "Created")
				for _, f := range items {
					tw.AppendRow([]any{f.ID, f.Name, f.NorthStar, ago(f.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func familyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current family, its members and goal counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				members, err := e.ListMembers(ctx, f.ID, actorID())
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountGoalsByStatus(ctx, f.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"family": f, "members": members, "goal_counts": counts})
				}
				fmt.Printf("%s (%s)\n", f.Name, f.ID)
				if f.NorthStar != "" {
					fmt.Printf("North star: %s\n", f.NorthStar)
				}
				tw := newTable("Member", "Role", "Joined")
				for _, m := range members {
					tw.AppendRow([]any{m.ActorID, m.Role, ago(m.CreatedAt)})
				}
				tw.Render()
				var parts []string
				for _, st := range []domain.GoalStatus{domain.GoalDraft, domain.GoalActive, domain.GoalBlocked, domain.GoalPaused, domain.GoalCompleted, domain.GoalDropped} {
					if n := counts[string(st)]; n > 0 {
						parts = append(parts, fmt.Sprintf("%s=%d", st, n))
					}
				}
				if len(parts) > 0 {
					fmt.Printf("Goals: %s\n", strings.Join(parts, " "))
				}
				return nil
			})
		},
	}
}

func familyAddMemberCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "add-member <actor-id>",
		Short: "Add a member to the current family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				m, err := e.AddMember(ctx, f.ID, args[0], role, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "ADULT", "ADULT, PARTNER or CHILD")
	return cmd
}

func familyUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the current family for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			familyID := strings.TrimSpace(args[0])
			if familyID == "" {
				return fmt.Errorf("family id is required")
			}
			workspace := viper.GetString("workspace")
			if err := app.SetEnvValue(workspace, "ACCORD_FAMILY", familyID); err != nil {
				return err
			}
			fmt.Printf("Set ACCORD_FAMILY=%s in %s\n", familyID, app.EnvPath(workspace))
			return nil
		},
	}
}

func familySeedCmd() *cobra.Command {
	var withGoals bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo family (no-op when it exists)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := app.SeedDemo(ctx, e, withGoals)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Created {
					fmt.Printf("Demo family %s already exists\n", res.Family.ID)
					return nil
				}
				fmt.Printf("Created demo family %s with members %s and %s\n", res.Family.ID, app.DemoAdult, app.DemoPartner)
				printConflicts(res.Conflicts)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withGoals, "with-goals", false, "also create two competing goals")
	return cmd
}
