package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/onec-updater/internal/domain/release"
)

// Settings is the contents of the settings file. It is loaded once per run
// and not modified afterwards.
type Settings struct {
	// Platform controls the platform distribution update.
	Platform Platform `json:"platform" yaml:"platform" mapstructure:"platform"`
	// PlatformPath is where platform archives are saved as <version>.zip.
	PlatformPath string `json:"platformPath" yaml:"platformPath" mapstructure:"platformPath"`
	// TemplatePath is the root of configuration templates, one subdirectory per product.
	TemplatePath string `json:"templatePath" yaml:"templatePath" mapstructure:"templatePath"`
	// UnzipFiles extracts every saved archive next to itself.
	UnzipFiles bool `json:"unzipFiles" yaml:"unzipFiles" mapstructure:"unzipFiles"`
	// Configurations lists the products to update, in processing order.
	Configurations []Configuration `json:"configurations" yaml:"configurations" mapstructure:"configurations"`
	// Connection describes the update gateway.
	Connection Connection `json:"connection" yaml:"connection" mapstructure:"connection"`
	// HistoryPath is the SQLite download journal. Empty disables the journal.
	HistoryPath string `json:"historyPath,omitempty" yaml:"historyPath,omitempty" mapstructure:"historyPath"`
	// CheckFreeSpace refuses to save an archive larger than the free disk space.
	CheckFreeSpace bool `json:"checkFreeSpace,omitempty" yaml:"checkFreeSpace,omitempty" mapstructure:"checkFreeSpace"`
}

// Platform holds the platform section of the settings.
type Platform struct {
	// Download enables the platform update flow.
	Download bool `json:"download" yaml:"download" mapstructure:"download"`
	// StartVersion is the baseline used when TemplatePath holds no version directory.
	StartVersion string `json:"startVersion" yaml:"startVersion" mapstructure:"startVersion"`
	// TemplatePath is scanned for installed platform version directories.
	TemplatePath string `json:"templatePath" yaml:"templatePath" mapstructure:"templatePath"`
}

// Configuration identifies one product to update.
type Configuration struct {
	// ProgramName is the product identifier known to the update service.
	ProgramName string `json:"programName" yaml:"programName" mapstructure:"programName"`
	// HumanName is only used in log lines.
	HumanName string `json:"humanName" yaml:"humanName" mapstructure:"humanName"`
	// StartVersion is the baseline used when no version directory exists yet.
	StartVersion string `json:"startVersion" yaml:"startVersion" mapstructure:"startVersion"`
	// PlatformVersion constrains the updates to those supported by this platform.
	PlatformVersion string `json:"platformVersion" yaml:"platformVersion" mapstructure:"platformVersion"`
}

// Name returns the human-readable name, falling back to the program name.
func (c Configuration) Name() string {
	if c.HumanName != "" {
		return c.HumanName
	}

	return c.ProgramName
}

// Connection holds update gateway parameters.
type Connection struct {
	// URL is the base URL of the update gateway.
	URL string `json:"url" yaml:"url" mapstructure:"url"`
	// Login is sent with basic authentication when not empty.
	Login string `json:"login,omitempty" yaml:"login,omitempty" mapstructure:"login"`
	// Password accompanies Login. Prefer ONEC_UPDATER_CONNECTION_PASSWORD over the file.
	Password string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	// Timeout bounds metadata requests. Archive downloads are bounded only by the context.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

const (
	// DefaultSettingsFilename is the default settings location, relative to the working directory.
	DefaultSettingsFilename = "settings.json"

	// DefaultHistoryFilename is suggested by the sample settings.
	DefaultHistoryFilename = "onec-updater-history.db"

	// DefaultTimeout is the default duration for metadata requests.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is used for the settings file.
	DefaultFilePermissions = 0o600

	// EnvPrefix prefixes environment variables overriding settings keys.
	EnvPrefix = "ONEC_UPDATER"
)

var (
	errSettingsIsNotSet       = errors.New("settings are not set")
	errConnectionURLRequired  = errors.New("connection.url must be provided")
	errPlatformPathRequired   = errors.New("platformPath must be provided when platform.download is enabled")
	errPlatformTemplateNeeded = errors.New("platform.templatePath must be provided when platform.download is enabled")
	errTemplatePathRequired   = errors.New("templatePath must be provided when configurations are listed")
	errProgramNameRequired    = errors.New("programName must be provided")
	errUnsupportedFormat      = errors.New("unsupported settings format")
)

// Load reads settings from path. The format follows the file extension;
// environment variables prefixed with EnvPrefix override file values.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultSettingsFilename
	}

	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// setDefaults registers every key that may come from the environment only.
func setDefaults(v *viper.Viper) {
	v.SetDefault("connection.url", "")
	v.SetDefault("connection.login", "")
	v.SetDefault("connection.password", "")
	v.SetDefault("connection.timeout", DefaultTimeout)
	v.SetDefault("historyPath", "")
	v.SetDefault("checkFreeSpace", false)
}

// Save writes settings to path as JSON or YAML depending on the extension.
func Save(path string, settings *Settings) error {
	if settings == nil {
		return errSettingsIsNotSet
	}

	if path == "" {
		path = DefaultSettingsFilename
	}

	// Defaults filled by Validate are not written back.
	checked := *settings
	if err := Validate(&checked); err != nil {
		return err
	}

	data, err := Marshal(path, settings)
	if err != nil {
		return err
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Marshal renders settings in the format implied by the extension of path.
func Marshal(path string, settings *Settings) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var buf bytes.Buffer

		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "    ")
		// Paths may legitimately contain "&".
		encoder.SetEscapeHTML(false)

		if err := encoder.Encode(settings); err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}

		return buf.Bytes(), nil
	case ".yaml", ".yml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}

		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedFormat, filepath.Ext(path))
	}
}

// Validate checks required fields and fills defaults.
func Validate(settings *Settings) error {
	if settings == nil {
		return errSettingsIsNotSet
	}

	if settings.Connection.URL == "" {
		return errConnectionURLRequired
	}

	if _, err := url.ParseRequestURI(settings.Connection.URL); err != nil {
		return fmt.Errorf("invalid connection url: %w", err)
	}

	if settings.Connection.Timeout <= 0 {
		settings.Connection.Timeout = DefaultTimeout
	}

	if settings.Platform.Download {
		if settings.PlatformPath == "" {
			return errPlatformPathRequired
		}

		if settings.Platform.TemplatePath == "" {
			return errPlatformTemplateNeeded
		}

		if err := validateStartVersion("platform.startVersion", settings.Platform.StartVersion); err != nil {
			return err
		}
	}

	if len(settings.Configurations) > 0 && settings.TemplatePath == "" {
		return errTemplatePathRequired
	}

	for i, configuration := range settings.Configurations {
		if configuration.ProgramName == "" {
			return fmt.Errorf("configurations[%d]: %w", i, errProgramNameRequired)
		}

		field := fmt.Sprintf("configurations[%d].startVersion", i)
		if err := validateStartVersion(field, configuration.StartVersion); err != nil {
			return err
		}
	}

	return nil
}

// validateStartVersion accepts an empty baseline (the service then offers the
// full distribution) or a well-formed 4-part version.
func validateStartVersion(field, value string) error {
	if value == "" {
		return nil
	}

	if _, ok := release.Parse(value); !ok {
		return fmt.Errorf("%s: %w: %q", field, release.ErrMalformedVersion, value)
	}

	return nil
}

// Sample returns settings suitable as a starting point for a new installation.
func Sample() *Settings {
	return &Settings{
		Platform: Platform{
			Download:     true,
			StartVersion: "8.3.20.1549",
			TemplatePath: filepath.Join("1c", "platform"),
		},
		PlatformPath: filepath.Join("1c", "distributions"),
		TemplatePath: filepath.Join("1c", "tmplts", "1c"),
		UnzipFiles:   true,
		Configurations: []Configuration{
			{
				ProgramName:     "Accounting",
				HumanName:       "Бухгалтерия предприятия, редакция 3.0",
				StartVersion:    "3.0.150.25",
				PlatformVersion: "8.3.20.1549",
			},
		},
		Connection: Connection{
			URL: "https://updates.example.com/api/v1",
		},
		HistoryPath: DefaultHistoryFilename,
	}
}
