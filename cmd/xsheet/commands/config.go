package commands

import (
	"context"
	"log/slog"
	"os"
	devenv "xsheet-companion/dev/env"
	"xsheet-companion/lib/browser"
	"xsheet-companion/lib/configutil"
	"xsheet-companion/lib/restyutil"
	"xsheet-companion/lib/serviceutil"
	"xsheet-companion/lib/telemetry"
	"xsheet-companion/lib/timezone"
	"xsheet-companion/lib/tokenstore"
	"xsheet-companion/lib/ui"
	"xsheet-companion/lib/xsheet"
	"xsheet-companion/services/session"

	"github.com/tcnksm/go-input"
)

const (
	defaultBaseUrl = "https://x-sheet.com"
	defaultFeedUrl = "https://x.com/home"
)

type Config struct {
	BaseUrl          string            `json:"base_url"`
	FeedUrl          string            `json:"feed_url"`
	Timezone         string            `json:"timezone"`
	CloudflareBypass bool              `json:"cloudflare_bypass"`
	Credentials      tokenstore.Config `json:"credentials"`
	Browser          browser.Config    `json:"browser"`
	Telemetry        telemetry.Config  `json:"telemetry"`
}

var defaultConfig = Config{
	BaseUrl: defaultBaseUrl,
	FeedUrl: defaultFeedUrl,
	Credentials: tokenstore.Config{
		File: "<dev_state>/credentials.db",
	},
	Browser: browser.Config{
		UserDataDir: "<dev_state>/chrome",
	},
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfigWithDefaults(*configPath, defaultConfig)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if env := os.Getenv("XSHEET_BASE_URL"); env != "" {
		cfg.BaseUrl = env
	}
	if env := os.Getenv("XSHEET_CREDENTIALS_DB"); env != "" {
		cfg.Credentials = tokenstore.Config{File: env}
	}
	if cfg.Timezone != "" {
		err = timezone.SetLocation(cfg.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to set timezone", err)
		}
	}
	return cfg
}

func newClient(cfg Config) *xsheet.Client {
	opts := xsheet.ClientOptions{
		BaseUrl:          cfg.BaseUrl,
		CloudflareBypass: cfg.CloudflareBypass,
	}
	if *verbose {
		output, err := restyutil.NewFilesystemOutput("<dev_state>/resty")
		if err != nil {
			slog.Warn("failed to create resty output", "err", err)
		} else {
			opts.InstrumentOutput = output
		}
	}
	client, err := xsheet.NewClient(opts)
	if err != nil {
		serviceutil.Fatal("failed to create x-sheet client", err)
	}
	return client
}

func openStore(ctx context.Context, cfg Config) tokenstore.SQLStore {
	store, err := cfg.Credentials.Open(ctx)
	if err != nil {
		serviceutil.Fatal("failed to open credential store", err)
	}
	return store
}

func newTerminal() *ui.Terminal {
	return &ui.Terminal{
		Out:   os.Stdout,
		Input: input.DefaultUI(),
	}
}

func newSession(store tokenstore.Store, client *xsheet.Client, presenter ui.Presenter) *session.Session {
	return session.New(store, client, presenter, session.Options{
		SettingsURL: client.SettingsURL(),
	})
}

// resolveBrowser expands state paths in the browser config.
func resolveBrowser(cfg browser.Config) browser.Config {
	if cfg.UserDataDir == "" {
		return cfg
	}
	dir, err := devenv.ResolvePath(cfg.UserDataDir)
	if err != nil {
		serviceutil.Fatal("failed to resolve browser profile dir", err)
	}
	cfg.UserDataDir = dir
	return cfg
}
