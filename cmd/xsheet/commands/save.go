package commands

import (
	"fmt"
	"log/slog"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/serviceutil"
	"xsheet-companion/lib/textutil"
	"xsheet-companion/lib/xsheet"

	"github.com/spf13/cobra"
)

// below this a sheet name is not considered a match.
const minSheetSimilarity = 0.8

var saveSheet *string
var saveText *string

func init() {
	saveSheet = saveCmd.Flags().String("sheet", "", "The sheet to save to, matched loosely against sheet titles.")
	saveText = saveCmd.Flags().String("text", "", "The post text to store alongside the url.")
	saveCmd.MarkFlagRequired("sheet")
	rootCmd.AddCommand(saveCmd)
}

var saveCmd = &cobra.Command{
	Use:   "save <post url> --sheet <name> [--text <text>]",
	Short: "Saves a post to a sheet without opening the feed.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if extract.IDFromURL(args[0]) == "" {
			serviceutil.Fatal("invalid post url", fmt.Errorf("%q does not point to a post", args[0]))
		}

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		client := newClient(cfg)
		credential := storedCredential(ctx, store)

		sheets, err := client.ListSheets(ctx, credential)
		if err != nil {
			apiFatal("failed to list sheets", err)
		}
		titles := make([]string, len(sheets))
		for i, s := range sheets {
			titles[i] = s.Title
		}
		index, similarity := textutil.MostSimilar(*saveSheet, titles)
		if index < 0 || similarity < minSheetSimilarity {
			serviceutil.Fatal("unknown sheet", fmt.Errorf("no sheet is named like %q", *saveSheet))
		}
		sheet := sheets[index]
		slog.Debug("matched sheet", "query", *saveSheet, "title", sheet.Title, "similarity", similarity)

		err = client.CreatePost(ctx, credential, xsheet.CreatePostRequest{
			URL:     args[0],
			Content: *saveText,
			SheetID: sheet.ID,
		})
		if err != nil {
			apiFatal("failed to save post", err)
		}
		fmt.Printf("Saved to %q.\n", sheet.Title)
	},
}
