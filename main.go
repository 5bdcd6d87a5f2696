package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/secomp2025/cardgolf/config"
	"github.com/secomp2025/cardgolf/controllers"
	"github.com/secomp2025/cardgolf/database"
	"github.com/secomp2025/cardgolf/logging"
	"github.com/secomp2025/cardgolf/scryfall"
	"github.com/secomp2025/cardgolf/twitter"
	"github.com/spf13/cobra"
	log "github.com/spf13/jwalterweatherman"
)

var (
	configFile  string
	verbose     bool
	scoreLatest bool
	forceNew    bool

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "cardgolf",
	Short: "Scryfall Card Golf contest bot",
	Long: `Runs one round of Card Golf: if no contest is live, the last contest is
scored and a new one is posted with two random cards.

Schedule it once a day.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Verbose = true
		}
		logCloser, err = logging.Setup(cfg.LoggingDir, cfg.Verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
	RunE: runContest,
}

var standingsCmd = &cobra.Command{
	Use:   "standings",
	Short: "Print cumulative standings across scored contests",
	Args:  cobra.NoArgs,
	RunE:  showStandings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./cardgolf.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVar(&scoreLatest, "results", false, "get latest contest results")
	rootCmd.Flags().BoolVar(&forceNew, "force-new", false, "force start next contest")

	rootCmd.AddCommand(standingsCmd, serveCmd)
}

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(rootCtx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func runContest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := cfg.RequireTwitter(); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	cards := scryfall.NewClient(httpClient, cfg.Scryfall.APIURL, cfg.Scryfall.UserAgent)
	social := twitter.NewClient(
		twitter.NewOAuthHTTPClient(ctx, httpClient,
			cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret,
			cfg.Twitter.AccessToken, cfg.Twitter.AccessSecret),
		cfg.Twitter.APIURL, cfg.Twitter.UploadURL,
	)

	var standings controllers.StandingsRecorder
	store, err := database.Open(ctx, cfg.Storage.StandingsDB)
	if err != nil {
		log.ERROR.Printf("Standings disabled: %v", err)
	} else {
		defer store.Close()
		standings = store
	}

	contests := controllers.NewContestController(cfg, cards, social, standings)
	if err := contests.Run(ctx, scoreLatest, forceNew); err != nil {
		log.ERROR.Printf("Contest run failed: %v", err)
		return err
	}
	return nil
}

func showStandings(cmd *cobra.Command, args []string) error {
	store, err := database.Open(cmd.Context(), cfg.Storage.StandingsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	standings, err := store.Standings(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tENTRANT\tWINS\tENTRIES\tBEST")
	for i, st := range standings {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", i+1, st.Entrant, st.Wins, st.Entries, st.BestLength)
	}
	return tw.Flush()
}
