package cmd

import (
	"os"
	"path/filepath"

	"github.com/cloudpage/drive/config"
)

// Older installations stored the configuration next to the data directory or
// under the original service name. When no explicit --config flag is passed we
// look through those locations and move a match into the default location.
//
// Only errors are returned from this function. os.ErrNotExist is returned when
// no configuration could be found anywhere.
func RelocateConfiguration() error {
	var match string
	check := []string{
		config.DefaultLocation,
		"/var/lib/cloudpage/drive.yml",
		"/etc/drive/config.yml",
	}

	for _, p := range check {
		if s, err := os.Stat(p); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else if !s.IsDir() {
			match = p
			break
		}
	}

	if match == "" {
		return os.ErrNotExist
	} else if match == config.DefaultLocation {
		return nil
	}

	p, _ := filepath.Split(config.DefaultLocation)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return err
	}
	if err := os.Rename(match, config.DefaultLocation); err != nil {
		return err
	}
	return os.Chmod(config.DefaultLocation, 0o600)
}
