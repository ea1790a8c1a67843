package app

import (
	"fmt"
	"os"
	"path"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/core"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
)

type Context struct {
	Environment        string `yaml:"environment"`
	RuntimeEnvironment string `yaml:"runtimeEnvironment"`
}

// Flags are command-line values that take precedence over the configuration files.
type Flags struct {
	Projects  []string
	Transport string
	Address   string
}

const (
	// EnvLocal indicates that the bridge is running locally.
	EnvLocal = "local"

	// EnvDevelopment indicates that the bridge is running in a development environment.
	EnvDevelopment = "development"

	// Environment variables
	_envLspMcpEnvironment = "LSPMCP_ENVIRONMENT"

	_flagsProviderName = "flags"
)

func decorateEnvContext(env Context) Context {
	envValue := EnvLocal
	if os.Getenv(_envLspMcpEnvironment) == EnvDevelopment {
		envValue = EnvDevelopment
	}

	env.Environment = envValue
	env.RuntimeEnvironment = envValue
	return env
}

// DecorateConfigParams is the set of dependencies required to decorate the config.Provider.
type DecorateConfigParams struct {
	fx.In

	Env   Context
	Cfg   config.Provider
	FS    fs.BridgeFS
	Flags Flags `optional:"true"`
}

// decorateConfigProvider includes any steps that modify the config.Provider before it is used, or use its data for any startup related activities.
func decorateConfigProvider(p DecorateConfigParams) (config.Provider, error) {
	combined, err := withFlags(p.Cfg, p.Flags)
	if err != nil {
		return nil, fmt.Errorf("applying command-line flags: %w", err)
	}

	if err := ensureLogFolder(combined, p.FS); err != nil {
		return nil, fmt.Errorf("ensuring log folder: %w", err)
	}

	return combined, nil
}

// withFlags layers the flags that were set on top of cfg.
// Projects given on the command line replace the configured list.
func withFlags(cfg config.Provider, flags Flags) (config.Provider, error) {
	overrides := make(map[string]interface{})
	if len(flags.Projects) > 0 {
		projects := make([]map[string]interface{}, 0, len(flags.Projects))
		for _, root := range flags.Projects {
			projects = append(projects, map[string]interface{}{"root": root})
		}
		overrides[entity.ProjectsConfigKey] = projects
	}

	transport := make(map[string]interface{})
	if flags.Transport != "" {
		transport["transport"] = flags.Transport
	}
	if flags.Address != "" {
		transport["address"] = flags.Address
	}
	if len(transport) > 0 {
		overrides["mcp"] = transport
	}

	if len(overrides) == 0 {
		return cfg, nil
	}

	static, err := config.NewStaticProvider(overrides)
	if err != nil {
		return nil, err
	}
	return config.NewProviderGroup(_flagsProviderName, cfg, static)
}

// Ensure that all configured logging output directories exist or create if necessary.
// The standard streams are not files and are skipped.
func ensureLogFolder(cfg config.Provider, fs fs.BridgeFS) error {
	var c core.LoggingConfig
	if err := cfg.Get("logging").Populate(&c); err != nil {
		return fmt.Errorf("loading logging config: %w", err)
	}

	for _, outputPath := range c.OutputPaths {
		if outputPath == "stderr" || outputPath == "stdout" {
			continue
		}
		dir := path.Dir(outputPath)
		if err := fs.MkdirAll(dir); err != nil {
			return fmt.Errorf("creating logging directory: %w", err)
		}
	}

	return nil
}
