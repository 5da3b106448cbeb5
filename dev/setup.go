package main

import (
	"context"
	"fmt"
	"os"
	devenv "xsheet-companion/dev/env"
	"xsheet-companion/lib/tokenstore"
)

const credentialsDb = "<dev_state>/credentials.db"

// points the companion at a locally running x-sheet server.
const defaultConfig = `{
  base_url: "http://localhost:8443",
  feed_url: "https://x.com/home",
  credentials: {
    file: "<dev_state>/credentials.db",
  },
  browser: {
    user_data_dir: "<dev_state>/chrome",
    headless: false,
    stealth: true,
  },
}
`

func CreateCredentialStore() error {
	path, err := devenv.ResolvePath(credentialsDb)
	if err != nil {
		return err
	}
	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	store, err := tokenstore.Config{File: credentialsDb}.Open(context.Background())
	if err != nil {
		return err
	}
	return store.Close()
}

func WriteDefaultConfig(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		fmt.Println("config already exists at", path)
		return nil
	}
	fmt.Println("writing config to", path)
	return os.WriteFile(path, []byte(defaultConfig), 0666)
}

func PrintConfigLocations() {
	fmt.Println()
	fmt.Println("xsheet.json5 is read from the working directory, put overrides in xsheet.local.json5.")
	fmt.Println("run `go run ./cmd/xsheet login` to store an api token.")
}
