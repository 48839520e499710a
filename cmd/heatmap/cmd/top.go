package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	// Top command flags
	topAddr    string
	topN       int
	topTimeout time.Duration
)

// topCmd represents the top command
var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the hottest lines of a running agent",
	RunE:  runTop,
}

func init() {
	rootCmd.AddCommand(topCmd)

	topCmd.Flags().StringVar(&topAddr, "addr", "http://localhost:9999", "Agent base URL")
	topCmd.Flags().IntVarP(&topN, "top", "n", 10, "Number of lines to show")
	topCmd.Flags().DurationVar(&topTimeout, "timeout", 5*time.Second, "Request timeout")
}

// hotLine is one hottest-list entry as served by the stats route.
type hotLine struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// statsResponse is the subset of the stats payload the top command prints.
type statsResponse struct {
	TotalLines            int       `json:"totalLines"`
	TotalExecutions       uint64    `json:"totalExecutions"`
	AutoInstrumentEnabled bool      `json:"autoInstrumentEnabled"`
	Hottest               []hotLine `json:"hottest"`
}

func runTop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), topTimeout)
	defer cancel()

	stats, err := fetchStats(ctx, http.DefaultClient, topAddr, topN)
	if err != nil {
		return err
	}
	renderTop(cmd.OutOrStdout(), stats)
	return nil
}

// fetchStats queries /api/heatmap/stats on the agent at base.
func fetchStats(ctx context.Context, client *http.Client, base string, n int) (*statsResponse, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/api/heatmap/stats")
	if err != nil {
		return nil, fmt.Errorf("invalid agent address: %w", err)
	}
	if n > 0 {
		u.RawQuery = url.Values{"topN": []string{strconv.Itoa(n)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("agent returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// renderTop prints the hottest lines with their share of all executions.
func renderTop(out io.Writer, stats *statsResponse) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Location", "Count", "Share"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	for i, h := range stats.Hottest {
		share := 0.0
		if stats.TotalExecutions > 0 {
			share = float64(h.Count) * 100 / float64(stats.TotalExecutions)
		}
		t.AppendRow(table.Row{i + 1, h.Key, humanize.Comma(int64(h.Count)), fmt.Sprintf("%.1f%%", share)})
	}

	mode := "manual"
	if stats.AutoInstrumentEnabled {
		mode = "manual+auto"
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%s lines (%s)", humanize.Comma(int64(stats.TotalLines)), mode), humanize.Comma(int64(stats.TotalExecutions)), ""})
	t.Render()
}
