package transform

import (
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/unbundle/unbundle/internal/errors"
)

// configNames are the compiler configuration files discovered under the
// project root, in priority order.
var configNames = []string{"tsconfig.json", "jsconfig.json"}

// Options is the compiler configuration loaded once at startup.
type Options struct {
	// Target is the syntax level emitted to the browser.
	Target api.Target
	// TsconfigRaw is the raw contents of the discovered tsconfig/jsconfig,
	// handed to the compiler verbatim. Empty means compiler defaults.
	TsconfigRaw string
	// ConfigPath is the file the options came from, for diagnostics.
	ConfigPath string
}

// LoadOptions discovers the compiler configuration under root. A missing
// config file yields defaults; an unreadable or malformed one is a fatal
// configuration error, so the server refuses to start rather than serving
// with a half-applied compiler setup.
func LoadOptions(root string) (Options, error) {
	options := Options{Target: api.ESNext}

	for _, name := range configNames {
		configPath := filepath.Join(root, name)

		raw, err := os.ReadFile(configPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Options{}, errors.NewConfigError("compiler_config_unreadable",
				"reading "+configPath, err)
		}

		options.TsconfigRaw = string(raw)
		options.ConfigPath = configPath
		break
	}

	if err := verify(options); err != nil {
		return Options{}, err
	}

	return options, nil
}

// verify runs a trivial transform so malformed compiler configuration is
// rejected at startup instead of on the first request.
func verify(options Options) error {
	result := api.Transform("export {}", api.TransformOptions{
		Loader:      api.LoaderTS,
		Target:      options.Target,
		TsconfigRaw: options.TsconfigRaw,
	})

	if len(result.Errors) > 0 {
		err := errors.NewConfigError("compiler_config_invalid", formatMessages(result.Errors), nil)
		err.FilePath = options.ConfigPath
		return err
	}

	return nil
}
