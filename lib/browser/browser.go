// Package browser drives a live Chrome tab through go-rod and exposes it as
// a dom.Page.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"xsheet-companion/lib/ui"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

type Config struct {
	// RemoteURL is the websocket url of an already running Chrome, empty
	// launches a local one.
	RemoteURL string `json:"remote_url"`
	Headless  bool   `json:"headless"`
	// UserDataDir keeps the profile (and so the feed login) across runs.
	UserDataDir string `json:"user_data_dir"`
	// Stealth patches the tab against automation detection.
	Stealth bool `json:"stealth"`
}

type Browser struct {
	cfg  Config
	rod  *rod.Browser
	lnch *launcher.Launcher
}

func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	wsURL := cfg.RemoteURL
	var lnch *launcher.Launcher
	if wsURL == "" {
		lnch = launcher.New().
			Context(ctx).
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if cfg.UserDataDir != "" {
			lnch = lnch.UserDataDir(cfg.UserDataDir)
		}

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		slog.InfoContext(ctx, "launched local chrome", "url", wsURL)
	} else {
		slog.InfoContext(ctx, "connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	err := b.Connect()
	if err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return &Browser{cfg: cfg, rod: b, lnch: lnch}, nil
}

func (b *Browser) Close() error {
	err := b.rod.Close()
	if b.lnch != nil {
		b.lnch.Cleanup()
	}
	return err
}

func (b *Browser) newTab() (*rod.Page, error) {
	if b.cfg.Stealth {
		return stealth.Page(b.rod)
	}
	return b.rod.Page(proto.TargetCreateTarget{URL: ""})
}

// OpenURL opens url in a new tab the user can close.
func (b *Browser) OpenURL(ctx context.Context, url string) (ui.Window, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("browser: open %s: %w", url, err)
	}
	return window{browser: b.rod, target: page.TargetID}, nil
}

type window struct {
	browser *rod.Browser
	target  proto.TargetTargetID
}

// Closed reports whether the tab is gone from the browser's targets.
func (w window) Closed(ctx context.Context) (bool, error) {
	res, err := proto.TargetGetTargets{}.Call(w.browser.Context(ctx))
	if err != nil {
		return false, err
	}
	for _, info := range res.TargetInfos {
		if info.TargetID == w.target {
			return false, nil
		}
	}
	return true, nil
}
