package commands

import (
	"os"
	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <page.html>",
	Short: "Prints the post record extracted for every like control in a saved page.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		f, err := os.Open(args[0])
		if err != nil {
			serviceutil.Fatal("failed to open page", err)
		}
		defer f.Close()
		tree, err := dom.NewTree(f)
		if err != nil {
			serviceutil.Fatal("failed to parse page", err)
		}

		extractor, err := extract.New(extract.Options{})
		if err != nil {
			serviceutil.Fatal("failed to create extractor", err)
		}
		controls, err := tree.QueryAll(ctx, extractor.Markup().LikeControl)
		if err != nil {
			serviceutil.Fatal("failed to query like controls", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "ID", "URL", "Author", "Text"})
		for i, el := range controls {
			post, ok := extractor.Extract(el)
			if !ok {
				t.AppendRow(table.Row{i + 1, "-", "(no post)", "", ""})
				continue
			}
			id, url := post.ID, post.URL
			if url == "" {
				id, url = "-", "(no url)"
			}
			t.AppendRow(table.Row{i + 1, id, url, post.Author, post.Text})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
