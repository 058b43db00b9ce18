package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accord/internal/domain"
	"accord/internal/engine"
)

func goalSubtaskCmd() *cobra.Command {
	sub := &cobra.Command{Use: "subtask", Short: "Manage goal steps; progress follows completed steps"}
	sub.AddCommand(subtaskAddCmd())
	sub.AddCommand(subtaskListCmd())
	sub.AddCommand(subtaskSetCmd("done", "Complete a step", true))
	sub.AddCommand(subtaskSetCmd("undo", "Reopen a step", false))
	sub.AddCommand(subtaskDeleteCmd())
	return sub
}

func subtaskAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <goal-id> <title>...",
		Short: "Append steps to a goal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				added, g, err := e.AddSubtasks(ctx, args[0], args[1:], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"goal": g, "subtasks": added})
				}
				for _, st := range added {
					fmt.Printf("Added step %d %s\n", st.Position, st.ID)
				}
				fmt.Printf("%s %d%% (%s)\n", g.ID, g.Progress, g.Status)
				return nil
			})
		},
	}
}

func subtaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <goal-id>",
		Short: "List the steps of a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSubtasks(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("#", "ID", "Title", "Done")
				for _, st := range items {
					tw.AppendRow([]any{st.Position, st.ID, st.Title, checkMark(st)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func subtaskSetCmd(use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <subtask-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, g, err := e.SetSubtaskCompleted(ctx, args[0], completed, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"goal": g, "subtask": st})
				}
				fmt.Printf("[%s] %s\n", checkMark(st), st.Title)
				fmt.Printf("%s %d%% (%s)\n", g.ID, g.Progress, g.Status)
				return nil
			})
		},
	}
}

func subtaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <subtask-id>",
		Short: "Remove a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.DeleteSubtask(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("Deleted step %s; %s %d%% (%s)\n", args[0], g.ID, g.Progress, g.Status)
				return nil
			})
		},
	}
}

func checkMark(st domain.Subtask) string {
	if st.Completed {
		return "x"
	}
	return " "
}
