// Package output renders search results and cache statistics for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/colthorp/prospect/internal/cache"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/service"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintSearch writes a search response as markdown: a summary line, the
// category breakdown and, for the places shape, a ranked table.
func PrintSearch(w io.Writer, resp *service.Response) error {
	res := resp.Result
	var b strings.Builder

	fmt.Fprintf(&b, "## %d places (%s)\n\n", res.TotalCount, resp.Source)
	if res.Partial {
		fmt.Fprintf(&b, "> Partial result: %d rating partitions could not be fetched.\n\n", res.FailedBranches)
	}

	if len(res.BreakdownByCategory) > 0 {
		b.WriteString("| Category | Count |\n|---|---:|\n")
		for _, k := range sortedKeys(res.BreakdownByCategory) {
			fmt.Fprintf(&b, "| %s | %d |\n", k, res.BreakdownByCategory[k])
		}
		b.WriteString("\n")
	}

	if res.Shape == model.ShapePlaces {
		if st := res.FitStatistics; st != nil {
			fmt.Fprintf(&b, "High fit: %d, average score: %.1f\n\n", st.HighFitCount, st.AverageScore)
		}
		if len(res.Places) > 0 {
			b.WriteString("| Score | Name | Rating | Reviews | Website | Reason |\n|---:|---|---:|---:|---|---|\n")
			for _, p := range res.Places {
				fmt.Fprintf(&b, "| %d | %s | %.1f | %d | %s | %s |\n",
					p.Fit.Score, cell(p.Name), p.Rating, p.ReviewCount, cell(p.Tech.WebsitePlatform), cell(p.Fit.Reason))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// PrintStats writes cache statistics as a markdown table.
func PrintStats(w io.Writer, s cache.Stats) error {
	_, err := fmt.Fprintf(w, "| Metric | Value |\n|---|---:|\n"+
		"| Hits | %d |\n| Misses | %d |\n| Hit rate | %.1f%% |\n"+
		"| Fast entries | %d |\n| Durable entries | %d |\n| Durable bytes | %d |\n",
		s.Hits, s.Misses, s.HitRate*100, s.FastEntries, s.DurableEntries, s.DurableBytes)
	return err
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cell escapes pipes so a value cannot break the table.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
