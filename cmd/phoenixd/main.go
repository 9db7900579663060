package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/nownosw/phoenix"
)

var (
	defaultConfigFilename = "phoenixd.conf"
)

func main() {
	err := start()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}
}

func start() error {
	config := phoenix.DefaultConfig()

	// Parse command line flags.
	parser := flags.NewParser(&config, flags.Default)

	_, err := parser.Parse()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}

	// Parse ini file.
	phoenixDir := filepath.Join(config.BaseDir, config.Network)
	configFile := filepath.Join(phoenixDir, defaultConfigFilename)

	if err := flags.IniParse(configFile, &config); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return err
		}
	}

	// Parse command line flags again to restore flags overwritten by ini
	// parse.
	_, err = parser.Parse()
	if err != nil {
		return err
	}

	// Make sure the passed configuration is valid.
	if err := config.Validate(); err != nil {
		return err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if config.ShowVersion {
		fmt.Println(appName, "version", phoenix.Version())
		os.Exit(0)
	}

	return phoenix.Run(&config)
}
