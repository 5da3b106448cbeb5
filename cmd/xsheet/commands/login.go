package commands

import (
	"xsheet-companion/lib/serviceutil"
	"xsheet-companion/lib/tokenstore"

	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Stores an X-Sheet API token and checks it against the server.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		client := newClient(cfg)
		terminal := newTerminal()
		sess := newSession(store, client, terminal)

		current, _, err := store.Get(ctx, tokenstore.CredentialKey)
		if err != nil {
			serviceutil.Fatal("failed to read credential", err)
		}
		token, err := terminal.Input.Ask("API token (from "+client.SettingsURL()+")", &input.Options{
			Default:     current,
			HideOrder:   true,
			Required:    true,
			Loop:        true,
			Mask:        true,
			MaskDefault: true,
		})
		if err != nil {
			serviceutil.Fatal("failed to read token", err)
		}

		err = sess.SaveCredential(ctx, token)
		if err != nil {
			serviceutil.Fatal("failed to save token", err)
		}
	},
}
