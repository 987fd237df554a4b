package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"property-scraper/config"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the configured site profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		siteSet, err := config.LoadSites(cfg.SitesFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range siteSet.Names() {
			site, _ := siteSet.Get(name)
			var features []string
			if len(site.Payload.ScriptSelectors) > 0 {
				features = append(features, "payload")
			}
			if site.Recency.Enabled {
				features = append(features, "recency")
			}
			if site.Reveal.Enabled {
				features = append(features, "reveal")
			}
			fmt.Fprintf(out, "%-10s %s [%s]\n", site.Name, site.StartURL(), strings.Join(features, ","))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}
