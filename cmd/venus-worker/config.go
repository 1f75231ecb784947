package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/ipfs-force-community/venus-worker/node/config"
)

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Inspect and generate worker configuration",
	Subcommands: []*cli.Command{
		configDefaultCmd,
		configInitCmd,
	},
}

var configDefaultCmd = &cli.Command{
	Name:  "default",
	Usage: "Print the default config to stdout",
	Action: func(cctx *cli.Context) error {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(config.DefaultWorker()); err != nil {
			return xerrors.Errorf("encoding default config: %w", err)
		}

		fmt.Print(buf.String())
		return nil
	},
}

var configInitCmd = &cli.Command{
	Name:  "init",
	Usage: "Write the default config file if none exists",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   defaultConfigPath,
			Usage:   "Path for the new config file",
		},
	},
	Action: func(cctx *cli.Context) error {
		path, err := homedir.Expand(cctx.String("config"))
		if err != nil {
			return xerrors.Errorf("expanding config path: %w", err)
		}

		if _, err := os.Stat(path); err == nil {
			return xerrors.Errorf("config file already exists at %s", path)
		} else if !os.IsNotExist(err) {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return xerrors.Errorf("creating config directory: %w", err)
		}

		if err := config.WriteFile(path, config.DefaultWorker()); err != nil {
			return err
		}

		fmt.Printf("config written to %s\n", path)
		return nil
	},
}
