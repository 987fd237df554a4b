package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"property-scraper/browser"
	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/scraper/geocode"
	"property-scraper/scraper/pipeline"
	"property-scraper/scraper/recency"
	"property-scraper/services"
	"property-scraper/utils"
)

type runFlags struct {
	sites       []string
	startURL    string
	maxPages    int
	maxRecords  int
	minPrice    int64
	maxPrice    int64
	transaction string
	startPage   int
	summary     bool
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape one or more sites",
	Example: `  property-scraper run --site tayara --max-pages 2
  property-scraper run --site mubawab --transaction sale --min-price 100000
  property-scraper run --site tayara --start-url "https://www.tayara.tn/ads/c/Immobilier?page=3"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		siteSet, err := config.LoadSites(cfg.SitesFile)
		if err != nil {
			return err
		}
		reqs, err := buildRequests(siteSet, runOpts, cfg)
		if err != nil {
			return err
		}
		policy, err := recency.ParseUnparsedPolicy(cfg.UnparsedAgePolicy)
		if err != nil {
			return err
		}

		sink, err := buildSinks(ctx, cfg, cmd.OutOrStdout())
		if err != nil {
			return eris.Wrap(err, "open storage")
		}
		defer sink.Close()

		b := browser.NewChromeBrowser(browser.ChromeOptions{
			ChromeBin: cfg.ChromeBin,
			Headless:  cfg.Headless,
		}, logger)
		defer b.Close()

		var geocoder geocode.Geocoder
		if cfg.GeocoderURL != "" {
			geocoder = geocode.NewNominatim(geocode.NominatimOptions{
				BaseURL:      cfg.GeocoderURL,
				UserAgent:    cfg.GeocoderUserAgent,
				Timeout:      cfg.GeocoderTimeout,
				RPS:          cfg.GeocoderRPS,
				CountryCodes: cfg.GeocoderCountries,
			})
		}
		resolver := geocode.NewResolver(geocoder, geocode.TunisiaGazetteer(), logger)

		orch := pipeline.NewOrchestrator(b, resolver, sink, pipeline.Options{
			Country:           cfg.Country,
			PageDelay:         time.Duration(cfg.RateLimitMs) * time.Millisecond,
			NavTimeout:        cfg.NavTimeout,
			ListingTimeout:    cfg.ListingTimeout,
			RevealStepTimeout: cfg.RevealStepTimeout,
			DetailConcurrency: cfg.DetailConcurrency,
			MaxRetries:        cfg.MaxRetries,
			MaxAgeDays:        cfg.MaxAgeDays,
			UnparsedAge:       policy,
		}, logger)

		pool := utils.NewBoundedWorkerPool(cfg.MaxConcurrency, cfg.QueueSize, 0,
			utils.ParseBackpressurePolicy(cfg.Backpressure))
		runner := pipeline.NewRunner(orch, pool, logger)

		logger.Info("=== Property scraper starting: %d site(s) | workers: %d | backpressure: %s ===",
			len(reqs), cfg.MaxConcurrency, utils.ParseBackpressurePolicy(cfg.Backpressure))

		var handles []*pipeline.Handle
		failed := 0
		for _, req := range reqs {
			h, err := runner.Submit(ctx, req)
			if err != nil {
				logger.Error("Run for %s not started: %v", req.Site.Name, err)
				failed++
				continue
			}
			handles = append(handles, h)
		}

		var total models.RunStatus
		var all []*models.PropertyRecord
		for _, h := range handles {
			recs, err := h.Wait()
			st := h.Status()
			total.PagesProcessed += st.PagesProcessed
			total.RecordsExtracted += st.RecordsExtracted
			total.RecordsDropped += st.RecordsDropped
			total.ListingsSkipped += st.ListingsSkipped
			all = append(all, recs...)
			if err != nil {
				failed++
				logger.Error("Run %s (%s) failed after %d records: %v", h.ID(), h.Site(), len(recs), err)
				continue
			}
			logger.Info("Run %s (%s): %d records, %d pages", h.ID(), h.Site(), len(recs), st.PagesProcessed)
		}
		runner.Wait()

		logger.Info("Done. %d records from %d pages (%d dropped, %d listings skipped)",
			total.RecordsExtracted, total.PagesProcessed, total.RecordsDropped, total.ListingsSkipped)

		if runOpts.summary {
			// Runs dedup on their own; the summary also collapses listings
			// that two site runs both reached.
			unique := services.NewCleaner(logger).Clean(all)
			insights := services.NewInsightService(logger)
			insights.Print(cmd.ErrOrStderr(), insights.Generate(unique))
		}

		if failed == len(reqs) {
			return eris.New("every run failed")
		}
		return nil
	},
}

// buildRequests turns the command-line flags into one request per site.
func buildRequests(siteSet config.SiteSet, f runFlags, c *config.Config) ([]pipeline.Request, error) {
	names := f.sites
	if len(names) == 0 {
		names = siteSet.Names()
	}
	if f.startURL != "" && len(names) != 1 {
		return nil, eris.New("--start-url needs exactly one --site")
	}

	maxPages, maxRecords := f.maxPages, f.maxRecords
	if maxPages <= 0 {
		maxPages = c.MaxPages
	}
	if maxRecords <= 0 {
		maxRecords = c.MaxRecords
	}

	reqs := make([]pipeline.Request, 0, len(names))
	for _, name := range names {
		site, err := siteSet.Get(name)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, pipeline.Request{
			Site:     site,
			StartURL: f.startURL,
			Query: models.Query{
				BaseURL:     site.StartURL(),
				MinPrice:    f.minPrice,
				MaxPrice:    f.maxPrice,
				Transaction: f.transaction,
				StartPage:   f.startPage,
			},
			MaxPages:   maxPages,
			MaxRecords: maxRecords,
		})
	}
	return reqs, nil
}

func init() {
	runCmd.Flags().StringSliceVar(&runOpts.sites, "site", nil, "site profile(s) to scrape (default: all configured)")
	runCmd.Flags().StringVar(&runOpts.startURL, "start-url", "", "first result page, bypassing query assembly")
	runCmd.Flags().IntVar(&runOpts.maxPages, "max-pages", 0, "result pages per run (default MAX_PAGES)")
	runCmd.Flags().IntVar(&runOpts.maxRecords, "max-records", 0, "records per run (default MAX_RECORDS)")
	runCmd.Flags().Int64Var(&runOpts.minPrice, "min-price", 0, "minimum price filter")
	runCmd.Flags().Int64Var(&runOpts.maxPrice, "max-price", 0, "maximum price filter")
	runCmd.Flags().StringVar(&runOpts.transaction, "transaction", "", "transaction type, e.g. sale or rent")
	runCmd.Flags().IntVar(&runOpts.startPage, "start-page", 1, "result page to start from")
	runCmd.Flags().BoolVar(&runOpts.summary, "summary", true, "print a summary of the extracted records")
	rootCmd.AddCommand(runCmd)
}
