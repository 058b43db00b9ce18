package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/repo"
)

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	var filters repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamily(cmd.Context(), func(ctx context.Context, e engine.Engine, f domain.Family) error {
				filters.FamilyID = f.ID
				items, err := e.ListEvents(ctx, filters, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "When", "Type", "Entity", "Actor")
				for _, evt := range items {
					tw.AppendRow([]any{evt.ID, ago(evt.TS), evt.Type, fmt.Sprintf("%s/%s", evt.EntityKind, evt.EntityID), evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&filters.Limit, "limit", "n", 20, "number of events")
	tail.Flags().StringVar(&filters.Type, "type", "", "filter by event type")
	tail.Flags().StringVar(&filters.EntityKind, "entity-kind", "", "filter by entity kind")
	tail.Flags().StringVar(&filters.EntityID, "entity-id", "", "filter by entity id")
	l.AddCommand(tail)
	return l
}
