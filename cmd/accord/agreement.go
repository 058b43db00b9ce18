package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accord/internal/domain"
	"accord/internal/engine"
)

func agreementCmd() *cobra.Command {
	a := &cobra.Command{Use: "agreement", Short: "Review family agreements"}
	a.AddCommand(agreementListCmd())
	a.AddCommand(agreementShowCmd())
	a.AddCommand(agreementStatsCmd())
	a.AddCommand(agreementStatusCmd("revise", domain.AgreementRevised, "Mark an agreement as revised"))
	a.AddCommand(agreementStatusCmd("cancel", domain.AgreementCancelled, "Cancel an agreement"))
	return a
}

func agreementListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agreements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				items, err := e.ListAgreements(ctx, engine.AgreementListOptions{FamilyID: f.ID, Status: status, ActorID: actorID()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Status", "Review", "Conflict")
				for _, a := range items {
					st := a.EffectiveStatus
					if st == "" {
						st = a.Status
					}
					tw.AppendRow([]any{a.ID, a.Title, st, reviewIn(a), a.ConflictID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "ACTIVE, EXPIRED, REVISED or CANCELLED")
	return cmd
}

func agreementShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAgreement(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("%s  %s (%s)\n", a.ID, a.Title, a.EffectiveStatus)
				fmt.Println(a.Terms)
				fmt.Printf("Review: %s\n", reviewIn(a))
				return nil
			})
		},
	}
}

func agreementStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count agreements by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				s, err := e.AgreementStats(ctx, f.ID, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := newTable("Total", "Active", "Expired", "Revised", "Cancelled", "Review soon")
				tw.AppendRow([]any{s.Total, s.Active, s.Expired, s.Revised, s.Cancelled, s.UpcomingReviews})
				tw.Render()
				return nil
			})
		},
	}
}

func agreementStatusCmd(use string, status domain.AgreementStatus, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAgreementStatus(ctx, args[0], string(status), actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Agreement %s is now %s\n", a.ID, a.Status)
				return nil
			})
		},
	}
}
