package config

import (
	"bytes"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

var log = logging.Logger("config")

// FromFile loads the worker config at path, falling back to def when the
// file does not exist. Decoded values overlay def, so a partial file keeps
// the defaults for everything it omits.
func FromFile(path string, def *Worker) (*Worker, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding config path: %w", err)
	}

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		if def == nil {
			return nil, xerrors.Errorf("couldn't load config: %w", err)
		}
		return def, nil
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck // The file is RO
	return FromReader(file, def)
}

// FromReader loads the config from a reader into def.
func FromReader(reader io.Reader, def *Worker) (*Worker, error) {
	cfg := *def
	md, err := toml.NewDecoder(reader).Decode(&cfg)
	if err != nil {
		return nil, err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warnw("unknown config keys ignored", "keys", undecoded)
	}

	return &cfg, nil
}

// WriteFile persists cfg as TOML at path, creating the file if needed.
func WriteFile(path string, cfg *Worker) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return xerrors.Errorf("expanding config path: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return xerrors.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return xerrors.Errorf("persisting config (%s): %w", path, err)
	}

	return nil
}
