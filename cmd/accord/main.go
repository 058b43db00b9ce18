package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"accord/internal/app"
	"accord/internal/config"
	"accord/internal/db"
	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/logging"
	"accord/internal/migrate"
	"accord/internal/repo"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "accord",
	Short: "Accord family goal conflict engine",
	Long: `Accord keeps a family's goals from silently fighting over the same resources.
- Goals declare the resources they need: MONEY, TIME, GEO, ENERGY, RISK.
- Creating or editing a goal compares it with every ACTIVE or DRAFT goal of the family;
  any overlap records a conflict and blocks both goals.
- A conflict is settled by a human choice of strategy (PRIORITY, SEQUENCE, COMPROMISE,
  TRANSFORM, DROP) with a stated cost and compensation; the engine applies the outcome to
  both goals and writes an agreement the family can review later.
- Event log: every change, view with 'accord log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := app.LoadEnv(workspace); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		serving := cmd.Name() == "serve"
		l, err := logging.New(logging.Options{
			Verbose: viper.GetBool("verbose"),
			Console: !serving,
			Quiet:   !serving,
		})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ACCORD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "acting family member")
	flags.String("family", "", "family id or name (defaults to your only family)")
	flags.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "family", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(familyCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(conflictCmd())
	rootCmd.AddCommand(agreementCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func actorID() string {
	return strings.TrimSpace(viper.GetString("actor-id"))
}

func openEngine() (engine.Engine, func(), error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeoutMS: viper.GetInt("busy-timeout")})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	e := engine.New(conn, cfg)
	e.Log = logger
	return e, func() { conn.Close() }, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, e)
}

func withFamily(ctx context.Context, fn func(context.Context, engine.Engine, domain.Family) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		f, err := app.ResolveFamily(ctx, e.Repo, viper.GetString("family"), actorID())
		if err != nil {
			return err
		}
		return fn(ctx, e, f)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e.Repo)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

// ago renders an RFC3339 timestamp as relative time.
func ago(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

// reviewIn renders the days until an agreement's review date.
func reviewIn(a domain.Agreement) string {
	if a.ValidUntil == "" {
		return "-"
	}
	t, err := time.Parse(domain.DateLayout, a.ValidUntil)
	if err != nil {
		return a.ValidUntil
	}
	return fmt.Sprintf("%s (%s)", a.ValidUntil, humanize.Time(t))
}

func printConflicts(conflicts []domain.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%s detected:\n", plural(len(conflicts), "conflict"))
	for _, c := range conflicts {
		fmt.Fprintf(os.Stderr, "  %s %s on %s: %s vs %s\n", c.ID, c.Type, c.SharedResources, c.GoalAID, c.GoalBID)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}

func optionalString(cmd *cobra.Command, name string, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
