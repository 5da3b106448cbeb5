package commands

import (
	"os"
	"xsheet-companion/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Shows the account behind the stored API token.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		sess := newSession(store, newClient(cfg), newTerminal())

		sess.IsLoggedIn(ctx)
		identity := sess.Identity()

		verified := "never"
		if !identity.LastVerifiedAt.IsZero() {
			verified = timezone.Format(identity.LastVerifiedAt)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Logged in", identity.Authenticated},
			{"Name", identity.DisplayName},
			{"Account", identity.AccountID},
			{"Verified", verified},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
