package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/org-stats/internal/cache"
	"github.com/naka-gawa/org-stats/internal/config"
	"github.com/naka-gawa/org-stats/internal/gateway"
	"github.com/naka-gawa/org-stats/internal/logger"
	"github.com/naka-gawa/org-stats/internal/output"
	"github.com/naka-gawa/org-stats/internal/ratelimit"
	"github.com/naka-gawa/org-stats/internal/usecase"
)

var statsCmd = &cobra.Command{
	Use:   "stats [account]",
	Short: "Aggregates contributor and language stats of an organization or user",
	Long: `Aggregates contributor activity (commits, additions, deletions) and language
usage over every repository of a GitHub organization or user. The account may be
given as an argument or with --org. The token is read from --token, GITHUB_TOKEN or GH_TOKEN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := configFromFlags(cmd, args, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return err
	}
	renderer, err := output.New(cfg.Format, output.WithSortBy(cfg.SortBy))
	if err != nil {
		return err
	}

	logFormat, _ := cmd.Flags().GetString("log-format")
	level := "warn"
	if cfg.Verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{Level: level, Format: logFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []gateway.Option{
		gateway.WithLimiter(ratelimit.New(ratelimit.WithLogger(logger.Named(log, "ratelimit")))),
	}
	if cfg.APIURL != "" {
		opts = append(opts, gateway.WithBaseURL(cfg.APIURL))
	}
	if cfg.Insecure {
		log.Warn().Msg("TLS certificate verification is disabled")
		opts = append(opts, gateway.WithInsecureTLS())
	}
	if !cfg.NoCache {
		if store := openCache(log); store != nil {
			opts = append(opts, gateway.WithCache(store))
		}
	}

	// Inject dependencies and run the main business logic.
	githubGateway, err := gateway.NewGitHubGateway(cfg.Token, logger.Named(log, "gateway"), opts...)
	if err != nil {
		return err
	}
	service := usecase.NewStatsService(githubGateway, logger.Named(log, "usecase"))

	report, err := service.Collect(ctx, cfg)
	if err != nil {
		return err
	}
	return output.WriteFile(cfg.Output, renderer, report)
}

// openCache returns nil when the cache cannot be used; the run then goes to the network.
func openCache(log zerolog.Logger) *cache.Store {
	dir, err := cache.DefaultDir()
	if err != nil {
		log.Warn().Err(err).Msg("response cache disabled")
		return nil
	}
	store, err := cache.New(dir)
	if err != nil {
		log.Warn().Err(err).Msg("response cache disabled")
		return nil
	}
	log.Debug().Str("dir", store.Dir()).Msg("using response cache")
	return store
}

func configFromFlags(cmd *cobra.Command, args []string, getenv func(string) string) config.Config {
	cfg := config.Default()
	flags := cmd.Flags()

	cfg.Account, _ = flags.GetString("org")
	if len(args) == 1 {
		cfg.Account = args[0]
	}
	cfg.Repository, _ = flags.GetString("repo")
	cfg.Token, _ = flags.GetString("token")
	if cfg.Token == "" {
		cfg.Token = config.TokenFromEnv(getenv)
	}
	cfg.TopN, _ = flags.GetInt("top")
	cfg.Since, _ = flags.GetString("since")
	cfg.Until, _ = flags.GetString("until")
	cfg.IncludeForks, _ = flags.GetBool("include-forks")
	cfg.NoCache, _ = flags.GetBool("no-cache")
	cfg.ExcludeRepos, _ = flags.GetStringSlice("exclude-repo")
	cfg.ExcludeBots, _ = flags.GetBool("exclude-bots")
	cfg.MinCommits, _ = flags.GetInt("min-commits")
	cfg.APIURL, _ = flags.GetString("api-url")
	cfg.Format, _ = flags.GetString("format")
	cfg.SortBy, _ = flags.GetString("sort-by")
	cfg.Output, _ = flags.GetString("output")
	cfg.Insecure, _ = flags.GetBool("insecure")
	cfg.Verbose, _ = flags.GetBool("verbose")
	return cfg
}

func addStatsFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("org", "o", "", "Target GitHub organization or user name")
	f.String("repo", "", "Only collect this repository of the account")
	f.String("token", "", "GitHub token (defaults to GITHUB_TOKEN, then GH_TOKEN)")
	f.IntP("top", "n", config.DefaultTopN, "Number of contributors to show")
	f.String("since", "", "Only count weeks from this date (YYYY-MM-DD)")
	f.String("until", "", "Only count weeks up to this date (YYYY-MM-DD)")
	f.Bool("include-forks", false, "Include forked repositories")
	f.Bool("no-cache", false, "Bypass the response cache entirely")
	f.StringSlice("exclude-repo", nil, "Repository names to skip (repeatable)")
	f.Bool("exclude-bots", false, "Leave bot accounts out of the ranking")
	f.Int("min-commits", 0, "Leave contributors with fewer commits out of the ranking")
	f.String("api-url", "", "GitHub API base URL, for GitHub Enterprise Server")
	f.StringP("format", "f", config.FormatTable, "Output format: table, json or csv")
	f.String("sort-by", config.SortCommits, "Order contributors in the output by commits, additions, deletions or lines")
	f.String("output", "", "Write the report to this file instead of stdout")
	f.Bool("insecure", false, "Skip TLS certificate verification (self-signed Enterprise Server)")
}

func init() {
	rootCmd.AddCommand(statsCmd)
	addStatsFlags(statsCmd)
}
