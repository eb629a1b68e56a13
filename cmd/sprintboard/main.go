package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sprintboard/internal/app"
	"sprintboard/internal/config"
	"sprintboard/internal/dashboard"
	"sprintboard/internal/dataset"
	"sprintboard/internal/logging"
	"sprintboard/internal/pipeline"
	"sprintboard/internal/store"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sprintboard",
	Short: "Filter and aggregate sprint/story exports for the project dashboard",
	Long: `sprintboard loads a CSV export of project, sprint and story records and
produces the KPIs and summary tables the dashboard charts are drawn from.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
				return err
			}
		}
		level := os.Getenv("LOG_LEVEL")
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level)
		if err != nil {
			return err
		}
		cfg, err = config.Load(logger)
		if err != nil {
			return err
		}
		if !verbose && cfg.LogLevel != level {
			logger, err = logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

type selectionFlags struct {
	project string
	sprint  string
	typ     string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.project, "project", pipeline.All, "project Name filter")
	cmd.Flags().StringVar(&f.sprint, "sprint", pipeline.All, "sprint Name filter")
	cmd.Flags().StringVar(&f.typ, "type", pipeline.All, "story Type filter")
}

func (f *selectionFlags) selection() pipeline.Selection {
	sel := pipeline.Selection{}
	for dim, v := range map[pipeline.Dimension]string{
		pipeline.DimProject:   f.project,
		pipeline.DimSprint:    f.sprint,
		pipeline.DimStoryType: f.typ,
	} {
		if v != "" && v != pipeline.All {
			sel[dim] = v
		}
	}
	return sel
}

var (
	viewSel   selectionFlags
	viewName  string
	viewDrill string
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the dashboard view for a filter selection as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, ok := cfg.View(viewName)
		if !ok {
			return fmt.Errorf("unknown view %q", viewName)
		}
		sel := viewSel.selection()
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			_ = writeJSON(cmd.OutOrStdout(), dashboard.Placeholder(spec, sel, err))
			return err
		}
		view, err := dashboard.Build(snap, spec, sel, viewDrill)
		if err != nil {
			_ = writeJSON(cmd.OutOrStdout(), dashboard.Placeholder(spec, sel, err))
			return err
		}
		return writeJSON(cmd.OutOrStdout(), view)
	},
}

var optionsSel selectionFlags

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Print the cascading filter choices for a selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		opts, err := pipeline.Options(snap.Records(), optionsSel.selection())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), opts)
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy the CSV export into the SQLite snapshot store",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := dataset.LoadFile(cfg.CSVPath, cfg.Columns)
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.ImportSnapshot(cmd.Context(), snap, time.Now()); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("snapshot imported",
			zap.String("snapshot", snap.ID),
			zap.String("db", cfg.DBPath),
			zap.Int("rows", snap.Len()),
		)
		fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
		return nil
	},
}

var snapshotsLimit int

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots imported into the SQLite store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		infos, err := st.ListSnapshots(cmd.Context(), snapshotsLimit)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), infos)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dashboard views over HTTP and reload when the export changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()
		return application.Run(cmd.Context())
	},
}

func loadSnapshot(ctx context.Context) (*dataset.Snapshot, error) {
	var src app.Source = app.CSVSource{Path: cfg.CSVPath, Columns: cfg.Columns}
	if cfg.Source == config.SourceSQLite {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		src = app.StoreSource{Store: st}
	}
	snap, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("snapshot loaded", zap.String("source", src.Describe()), zap.Int("rows", snap.Len()))
	return snap, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config/sprintboard.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	viewSel.register(viewCmd)
	viewCmd.Flags().StringVar(&viewName, "view", "", "named view (default overview)")
	viewCmd.Flags().StringVar(&viewDrill, "drill", "", "project whose status counts are split by sprint")

	optionsSel.register(optionsCmd)

	snapshotsCmd.Flags().IntVar(&snapshotsLimit, "limit", 20, "maximum snapshots to list")

	rootCmd.AddCommand(viewCmd, optionsCmd, importCmd, snapshotsCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
