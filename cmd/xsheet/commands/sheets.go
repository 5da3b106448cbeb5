package commands

import (
	"context"
	"errors"
	"os"
	"xsheet-companion/lib/serviceutil"
	"xsheet-companion/lib/tokenstore"
	"xsheet-companion/lib/ui"
	"xsheet-companion/lib/xsheet"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sheetsCmd)
}

func storedCredential(ctx context.Context, store tokenstore.Store) string {
	credential, ok, err := store.Get(ctx, tokenstore.CredentialKey)
	if err != nil {
		serviceutil.Fatal("failed to read credential", err)
	}
	if !ok {
		serviceutil.Fatal("no api token", errors.New("run `xsheet login` first"))
	}
	return credential
}

func apiFatal(message string, err error) {
	if errors.Is(err, xsheet.ErrUnauthorized) {
		serviceutil.Fatal(message, errors.New("the api token was rejected, run `xsheet login` with a new one"))
	}
	serviceutil.Fatal(message, err)
}

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Lists the sheets of the logged in account.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()

		sheets, err := newClient(cfg).ListSheets(ctx, storedCredential(ctx, store))
		if err != nil {
			apiFatal("failed to list sheets", err)
		}
		ui.RenderSheets(os.Stdout, sheets)
	},
}
