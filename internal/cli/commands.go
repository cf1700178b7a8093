package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/engine"
	"github.com/careledger/careledger/internal/pipeline"
	"github.com/careledger/careledger/internal/store"
)

var (
	flagOwner      string
	flagCategory   string
	flagTags       []string
	flagDate       string
	flagLimit      int
	flagFloor      float64
	flagTimeWeight float64
	flagAsOf       string
	flagForce      bool
	flagTerm       string
	flagWindowDays int
)

// openDB resolves the database path from CARELEDGER_DB, then the config
// file, then the default location.
func openDB() (*store.DB, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, err
	}

	dbPath := os.Getenv("CARELEDGER_DB")
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, cfg, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("open database: %w", err)
	}
	return db, cfg, nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [content]",
	Short: "Store a record for an owner",
	Long:  "Store a new record. Content comes from the argument, or from stdin when omitted.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := ""
		if len(args) == 1 {
			content = args[0]
		} else {
			data, err := readStdin()
			if err != nil {
				return err
			}
			content = strings.TrimSpace(data)
		}

		var createdAt time.Time
		if flagDate != "" {
			t, err := time.Parse("2006-01-02", flagDate)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			createdAt = t
		}

		db, cfg, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		eng := engine.New(db)
		configureEmbedder(db, eng, cfg)

		id, err := eng.Ingest(context.Background(), flagOwner, flagCategory, content, flagTags, createdAt)
		if err != nil {
			return err
		}

		fmt.Printf("stored %s\n", id)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve ranked records for an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		eng := engine.New(db)
		configureEmbedder(db, eng, cfg)

		// CLI queries run without an LLM; recommendations come from rules.
		pipe := pipeline.New(eng, nil, &pipeline.RuleRecommender{}, nil,
			time.Duration(cfg.Memory.TimeoutSeconds)*time.Second)

		// Flags win; unset ones fall back to the configured defaults.
		if flagLimit == 0 {
			flagLimit = cfg.Memory.ResultLimit
		}
		if flagFloor == 0 {
			flagFloor = cfg.Memory.SimilarityFloor
		}
		if flagTimeWeight == 0 {
			flagTimeWeight = cfg.Memory.TimeWeight
		}

		result, err := pipe.Run(context.Background(), pipeline.QueryRequest{
			OwnerID:    flagOwner,
			QueryText:  args[0],
			Limit:      flagLimit,
			Floor:      flagFloor,
			TimeWeight: flagTimeWeight,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run weight decay maintenance for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf := time.Now()
		if flagAsOf != "" {
			t, err := time.Parse("2006-01-02", flagAsOf)
			if err != nil {
				return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
			}
			asOf = t
		}

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		eng := engine.New(db)
		result, err := eng.ApplyDecay(flagOwner, asOf)
		if err != nil {
			return err
		}

		fmt.Printf("decayed %d, protected %d\n", result.Decayed, result.Protected)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all records for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.ValidateOwnerID(flagOwner); err != nil {
			return err
		}
		if !flagForce {
			return fmt.Errorf("purge deletes every record for %s; re-run with --force", flagOwner)
		}

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		deleted, err := db.PurgeOwner(flagOwner)
		if err != nil {
			return err
		}

		fmt.Printf("deleted %d records\n", deleted)
		return nil
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show an owner's chronological record timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		eng := engine.New(db)

		if flagTerm != "" {
			prog, err := eng.Progression(flagOwner, flagTerm, flagWindowDays, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(prog)
		}

		summary, err := eng.Summary(flagOwner, time.Now())
		if err != nil {
			return err
		}
		records, err := eng.Timeline(flagOwner)
		if err != nil {
			return err
		}

		fmt.Printf("%d records, %d categories\n", summary.TotalRecords, len(summary.ByCategory))
		if summary.Health != nil {
			fmt.Printf("health %.2f (%s)\n", summary.Health.Score, summary.Health.Status)
		}
		for _, rec := range records {
			date := time.UnixMilli(rec.CreatedAt).Format("2006-01-02")
			content := rec.Content
			if runes := []rune(content); len(runes) > 80 {
				content = string(runes[:80]) + "..."
			}
			fmt.Printf("  %s  [%s]  %s\n", date, rec.Category, content)
		}
		return nil
	},
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func init() {
	for _, cmd := range []*cobra.Command{ingestCmd, queryCmd, maintainCmd, purgeCmd, timelineCmd} {
		cmd.Flags().StringVar(&flagOwner, "owner", "", "Owner (patient) identifier")
		cmd.MarkFlagRequired("owner")
	}

	ingestCmd.Flags().StringVar(&flagCategory, "category", "note", "Record category")
	ingestCmd.Flags().StringSliceVar(&flagTags, "tag", nil, "Tag (repeatable)")
	ingestCmd.Flags().StringVar(&flagDate, "date", "", "Record date (YYYY-MM-DD, default now)")

	queryCmd.Flags().IntVar(&flagLimit, "limit", 0, "Max results (default 10)")
	queryCmd.Flags().Float64Var(&flagFloor, "floor", 0, "Similarity floor (default 0.5, negative disables)")
	queryCmd.Flags().Float64Var(&flagTimeWeight, "time-weight", 0, "Recency blend weight (default 0.3)")

	maintainCmd.Flags().StringVar(&flagAsOf, "as-of", "", "Maintenance reference date (YYYY-MM-DD, default now)")

	purgeCmd.Flags().BoolVar(&flagForce, "force", false, "Skip confirmation")

	timelineCmd.Flags().StringVar(&flagTerm, "term", "", "Show progression for a symptom term instead")
	timelineCmd.Flags().IntVar(&flagWindowDays, "window-days", 0, "Progression lookback window in days (default all)")
}
