// Public domain.

// Package srcconf loads srcid run configuration.
//
// Values come from an optional YAML file, then SRCID_ prefixed
// environment variables, e.g. SRCID_OUTPUT_OVERLAY=lat.reg.  The
// catalogue repository is found through its own list of environment
// variables, tried in order.
package srcconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrRepository reports that no catalogue repository could be found.
var ErrRepository = errors.New("no catalogue repository")

type Config struct {
	Catalogues CataloguesConfig
	Classes    ClassesConfig
	Engine     EngineConfig
	Output     OutputConfig
	Log        LogConfig

	// CatDir is the resolved catalogue repository.
	CatDir string `mapstructure:"-"`
	// File is the configuration file read, empty if none.
	File string `mapstructure:"-"`
}

type CataloguesConfig struct {
	Env     []string // environment variables naming the repository
	Default string   // used when none of Env is set
}

type ClassesConfig struct {
	Dir string // empty for the built in classes
}

type EngineConfig struct {
	Command     string
	Dir         string // working directory for engine runs and result files
	Log         string // log file name the engine writes
	SrcPrefix   string
	SrcPosError float64
	Chatter     int
	Mode        string
}

type OutputConfig struct {
	Widened      string
	Consolidated string
	Overlay      string // empty disables
	Ledger       string // empty disables
	Metrics      string // empty disables
	Positions    bool
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalogues.env", []string{"SRCID_CAT", "FERMI_CAT", "GLAST_CAT"})
	v.SetDefault("catalogues.default", "/project-data/glast/cat")

	v.SetDefault("classes.dir", "")

	v.SetDefault("engine.command", "gtsrcid")
	v.SetDefault("engine.dir", "")
	v.SetDefault("engine.log", "gtsrcid.log")
	v.SetDefault("engine.srcPrefix", "LAT")
	v.SetDefault("engine.srcPosError", 0.)
	v.SetDefault("engine.chatter", 1)
	v.SetDefault("engine.mode", "ql")

	v.SetDefault("output.widened", "srcid.fits")
	v.SetDefault("output.consolidated", "srcid-lat.fits")
	v.SetDefault("output.overlay", "srcid.reg")
	v.SetDefault("output.ledger", "")
	v.SetDefault("output.metrics", "")
	v.SetDefault("output.positions", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration.  A non-empty configFile must exist; otherwise
// srcid.yaml is looked for in the current directory and in the parent of
// classDir.  A non-empty classDir overrides classes.dir.  The catalogue
// repository is resolved last; failure to find one is ErrRepository.
func Load(configFile, classDir string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("srcid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if classDir != "" {
			v.AddConfigPath(filepath.Dir(filepath.Clean(classDir)))
		}
	}

	v.SetEnvPrefix("SRCID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.File = v.ConfigFileUsed()
	if classDir != "" {
		config.Classes.Dir = classDir
	}

	dirs := make([]string, len(config.Catalogues.Env))
	for i, name := range config.Catalogues.Env {
		key := "repository." + strings.ToLower(name)
		if err := v.BindEnv(key, name); err != nil {
			return nil, err
		}
		dirs[i] = v.GetString(key)
	}
	dir, err := Resolve(append(dirs, config.Catalogues.Default)...)
	if err != nil {
		return nil, fmt.Errorf("%w: tried %s and %q", err,
			strings.Join(config.Catalogues.Env, ", "), config.Catalogues.Default)
	}
	config.CatDir = dir
	return &config, nil
}

// Resolve returns the first of dirs that names an existing directory, as
// an absolute path.  Empty entries are skipped.
func Resolve(dirs ...string) (string, error) {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			return filepath.Abs(d)
		}
	}
	return "", ErrRepository
}
