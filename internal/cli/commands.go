package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colthorp/prospect/internal/config"
	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/detect"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/output"
	"github.com/colthorp/prospect/internal/scoring"
	"github.com/colthorp/prospect/internal/search"
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)

	addSearchFlags(searchCmd)

	// Detect command flags
	detectCmd.Flags().String("name", "", "Business name, for chain detection and scoring")
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64P("radius", "r", core.DefaultRadiusKm, fmt.Sprintf("Search radius in kilometres (max %g)", core.MaxRadiusKm))
	cmd.Flags().StringP("type", "t", "", "Comma separated place types (e.g. restaurant,cafe)")
	cmd.Flags().StringP("price", "p", "", "Price tiers: $$, $$-$$$ or 1,2")
	cmd.Flags().Float64("min-rating", core.DefaultMinRating, "Minimum rating")
	cmd.Flags().Float64("max-rating", core.DefaultMaxRating, "Maximum rating")
	cmd.Flags().Bool("count", false, "Return counts and category breakdown only")
}

// searchCmd handles the search subcommand
var searchCmd = &cobra.Command{
	Use:   "search [location]",
	Short: "Count or list scored restaurants around a ZIP code, address or lat,lng",
	Args:  cobra.ExactArgs(1),
	RunE:  handleSearch,
}

// detectCmd runs tech and chain detection for a single website
var detectCmd = &cobra.Command{
	Use:   "detect [url]",
	Short: "Detect the website platform and ordering systems of one site",
	Args:  cobra.ExactArgs(1),
	RunE:  handleDetect,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local search cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  handleCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from both local cache tiers",
	Args:  cobra.NoArgs,
	RunE:  handleCacheClear,
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Remove one cached search, locally and from the shared table",
	Args:  cobra.ExactArgs(1),
	RunE:  handleCacheDelete,
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	RunE:  handleMCP,
}

// queryFromFlags builds a Query from the search command's arguments.
func queryFromFlags(cmd *cobra.Command, location string) (search.Query, error) {
	radius, _ := cmd.Flags().GetFloat64("radius")
	types, _ := cmd.Flags().GetString("type")
	price, _ := cmd.Flags().GetString("price")
	minRating, _ := cmd.Flags().GetFloat64("min-rating")
	maxRating, _ := cmd.Flags().GetFloat64("max-rating")
	count, _ := cmd.Flags().GetBool("count")

	if zip, err := core.ParseZIP(location); err == nil {
		location = zip
	}

	q := search.DefaultQuery(location)
	q.RadiusKm = radius
	q.Types = core.ParseList(types)
	q.MinRating = minRating
	q.MaxRating = maxRating
	if count {
		q.Shape = model.ShapeCount
	}

	levels, err := core.ParsePriceLevels(price)
	if err != nil {
		return q, err
	}
	q.PriceLevels = levels
	return q, q.Validate()
}

func handleSearch(cmd *cobra.Command, args []string) error {
	q, err := queryFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	core.ProgressPrint(fmt.Sprintf("Searching %s within %.1f km…", q.Location, q.RadiusKm), quiet)

	resp, err := a.prospector.Search(cmd.Context(), a.token, q)
	if err != nil {
		return err
	}

	if raw {
		return output.PrintJSON(os.Stdout, resp)
	}
	return output.PrintSearch(os.Stdout, resp)
}

func handleDetect(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	d := detect.NewDetector(detect.WithTimeout(cfg.Places.CrawlTimeout))

	core.ProgressPrint(fmt.Sprintf("Fetching %s…", args[0]), quiet)

	ep := model.EnrichedPlace{
		Place: model.Place{Name: name, Website: args[0]},
		Tech:  d.Detect(cmd.Context(), args[0]),
		Chain: detect.DetectChain(name, args[0]),
	}
	ep.Fit = scoring.Score(scoring.NewInput(ep, cfg.Search.TargetPlatform))

	if raw {
		return output.PrintJSON(os.Stdout, ep)
	}

	t := ep.Tech
	fmt.Printf("Platform:     %s (confidence %d)\n", orNone(t.WebsitePlatform), t.Confidence)
	fmt.Printf("Ordering:     %s\n", list(t.OrderingSystems))
	fmt.Printf("Delivery:     %s\n", list(t.DeliveryPlatforms))
	fmt.Printf("Reservations: %s\n", list(t.ReservationSystems))
	fmt.Printf("Loyalty:      %s\n", list(t.LoyaltySystems))
	fmt.Printf("POS:          %s\n", list(t.POSSystems))
	fmt.Printf("Chain:        %v (%s)\n", ep.Chain.IsChain, ep.Chain.Reason)
	fmt.Printf("Fit:          %d – %s\n", ep.Fit.Score, ep.Fit.Reason)
	return nil
}

func handleCacheStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	stats := a.prospector.Stats(cmd.Context())
	if raw {
		return output.PrintJSON(os.Stdout, stats)
	}
	return output.PrintStats(os.Stdout, stats)
}

func handleCacheClear(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.prospector.ClearCache(cmd.Context()); err != nil {
		return err
	}
	core.ProgressPrint("Cache cleared.", quiet)
	return nil
}

func handleCacheDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.prospector.Invalidate(cmd.Context(), args[0]); err != nil {
		return err
	}
	core.ProgressPrint(fmt.Sprintf("Removed %s.", args[0]), quiet)
	return nil
}

func handleMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	srv := newMCPServer(a.prospector, a.detector, a.token, a.logger)
	return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func list(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
