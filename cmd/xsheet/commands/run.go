package commands

import (
	"log/slog"
	"time"
	"xsheet-companion/lib/browser"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/serviceutil"
	"xsheet-companion/lib/telemetry"
	"xsheet-companion/services/classify"
	"xsheet-companion/services/watcher"

	"github.com/spf13/cobra"
)

var feedUrl *string

func init() {
	feedUrl = runCmd.Flags().String("feed", "", "The feed to open, overrides feed_url in the config.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--feed <url>]",
	Short: "Opens the feed in a browser and offers to file every liked post into a sheet.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		if *feedUrl != "" {
			cfg.FeedUrl = *feedUrl
		}

		tel, err := telemetry.Setup(ctx, "xsheet", cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer tel.Shutdown(ctx)
		go telemetry.InstrumentPerfStats(ctx, time.Minute)

		store := openStore(ctx, cfg)
		defer store.Close()
		client := newClient(cfg)

		extractor, err := extract.New(extract.Options{})
		if err != nil {
			serviceutil.Fatal("failed to create extractor", err)
		}
		markup := extractor.Markup()

		b, err := browser.Launch(ctx, resolveBrowser(cfg.Browser))
		if err != nil {
			serviceutil.Fatal("failed to launch browser", err)
		}
		defer b.Close()

		page, err := b.OpenPage(ctx, cfg.FeedUrl, browser.PageOptions{
			Container: markup.Container,
		})
		if err != nil {
			serviceutil.Fatal("failed to open feed", err)
		}
		defer page.Close()

		presenter := newTerminal()
		presenter.Page = page
		presenter.Overlay = page
		presenter.Open = b.OpenURL

		sess := newSession(store, client, presenter)
		if sess.IsLoggedIn(ctx) {
			slog.InfoContext(ctx, "logged in", "account", sess.Identity().Account().String())
		}

		workflow := classify.New(page, extractor, sess, client, presenter, classify.Options{})
		w := watcher.New(page, markup.LikeControl, workflow.Attach, watcher.Options{})
		w.Start(ctx)
		slog.InfoContext(ctx, "watching feed", "url", cfg.FeedUrl)

		<-ctx.Done()
		w.Wait()
		workflow.Wait()
		slog.Info("stopped", "seen", w.Seen())
	},
}
