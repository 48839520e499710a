package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/exec-heatmap/internal/sourcemap"
	"github.com/exec-heatmap/pkg/model"
	"github.com/exec-heatmap/pkg/writer"
)

var (
	// Decode command flags
	decodeLimit int
	decodeJSON  bool
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <file.map>",
	Short: "Decode a source map and print its mapping entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().IntVarP(&decodeLimit, "limit", "n", 0, "Print at most N entries (0 prints all)")
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Print entries as JSON")
}

func runDecode(cmd *cobra.Command, args []string) error {
	tbl, err := sourcemap.LoadFile(args[0])
	if err != nil {
		return err
	}

	entries := tbl.Entries
	if decodeLimit > 0 && len(entries) > decodeLimit {
		entries = entries[:decodeLimit]
	}

	out := cmd.OutOrStdout()
	if decodeJSON {
		return writer.NewPrettyJSONWriter[[]model.MappingEntry]().Write(entries, out)
	}

	renderMappings(out, tbl.Name, tbl.Sources, entries, len(tbl.Entries))
	return nil
}

// renderMappings prints entries as a table followed by a summary line.
func renderMappings(out io.Writer, name string, sources []string, entries []model.MappingEntry, total int) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Gen Line", "Gen Col", "Source", "Src Line", "Src Col"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.GeneratedLine, e.GeneratedColumn, e.SourceFile, e.SourceLine, e.SourceColumn})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%s entries", humanize.Comma(int64(total))), "", ""})
	t.Render()

	fmt.Fprintf(out, "%s: %d sources, showing %d of %d mappings\n", name, len(sources), len(entries), total)
}
