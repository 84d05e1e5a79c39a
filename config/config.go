package config

import (
	"os"
	"path/filepath"
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"
)

const DefaultLocation = "/etc/cloudpage/drive.yml"

var (
	mu            sync.RWMutex
	_config       *Configuration
	_debugViaFlag bool
)

// ApiConfiguration defines the configuration for the HTTP API that is exposed
// by the daemon.
type ApiConfiguration struct {
	// The interface that the internal webserver should bind to.
	Host string `default:"0.0.0.0" yaml:"host"`

	// The port that the internal webserver should bind to.
	Port int `default:"8080" yaml:"port"`

	// SSL configuration for the daemon.
	Ssl struct {
		Enabled         bool   `json:"enabled" yaml:"enabled"`
		CertificateFile string `json:"cert" yaml:"cert"`
		KeyFile         string `json:"key" yaml:"key"`
	}

	// The maximum size for files uploaded through the API in MiB.
	UploadLimit int64 `default:"100" json:"upload_limit" yaml:"upload_limit"`
}

// SystemConfiguration defines basic system configuration settings.
type SystemConfiguration struct {
	// The root directory where all of the daemon data is stored at.
	RootDirectory string `default:"/var/lib/cloudpage" yaml:"root_directory"`

	// Directory where logs for the daemon are written.
	LogDirectory string `default:"/var/log/cloudpage" yaml:"log_directory"`

	// Directory where the files for each user are stored. Every user is given
	// their own directory beneath this one.
	Data string `default:"/var/lib/cloudpage/drives" yaml:"data"`

	// Gitignore style patterns for files and folders that cannot be modified
	// through the API.
	Denylist []string `yaml:"denylist"`

	// The maximum speed at which uploads are written to the disk, in MiB/s.
	// A value of zero disables the limit.
	WriteLimit int `default:"0" yaml:"write_limit"`

	// The number of entries inspected at the same time when listing the
	// contents of a folder.
	ListWorkers int `default:"4" yaml:"list_workers"`
}

type Configuration struct {
	// The location from which this configuration instance was instantiated.
	path string

	// Determines if the daemon should be running in debug mode. This value is
	// ignored if the debug flag is passed through the command line arguments.
	Debug bool `yaml:"debug"`

	// The token used when performing operations. Requests to this instance must
	// validate against it.
	AuthenticationToken string `json:"-" yaml:"token"`

	Api    ApiConfiguration    `json:"api" yaml:"api"`
	System SystemConfiguration `json:"system" yaml:"system"`

	// AllowedOrigins is a list of origins that are allowed to make requests
	// to this instance from a browser.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// NewAtPath creates a new struct and set the path where it should be stored.
// This function does not modify the currently stored global configuration.
func NewAtPath(path string) (*Configuration, error) {
	var c Configuration
	// Configures the default values for many of the configuration options present
	// in the structs. Values set in the configuration file will be overridden by
	// these values.
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	c.path = path
	return &c, nil
}

// Set the global configuration instance. This is a blocking operation such that
// anything trying to set a different configuration value, or read the configuration
// will be paused until it is complete.
func Set(c *Configuration) {
	mu.Lock()
	_config = c
	mu.Unlock()
}

// SetDebugViaFlag tracks if the application is running in debug mode because of
// a command line flag argument. If so we do not want to store that configuration
// change to the disk.
func SetDebugViaFlag(d bool) {
	mu.Lock()
	_config.Debug = d
	_debugViaFlag = d
	mu.Unlock()
}

// Get returns the global configuration instance. This is a thread-safe operation
// that will block if the configuration is presently being modified.
//
// Be aware that you CANNOT make modifications to the currently stored configuration
// by modifying the struct returned by this function. The only way to make
// modifications is by using the Update() function and passing data through in
// the callback.
func Get() *Configuration {
	mu.RLock()
	// Create a copy of the struct so that all modifications made beyond this
	// point are immutable.
	//goland:noinspection GoVetCopyLock
	c := *_config
	mu.RUnlock()
	return &c
}

// Update performs an in-situ update of the global configuration object using
// a thread-safe mutex lock. This is the correct way to make modifications to
// the global configuration.
func Update(callback func(c *Configuration)) {
	mu.Lock()
	callback(_config)
	mu.Unlock()
}

// GetPath returns the location of the configuration file on the disk.
func (c *Configuration) GetPath() string {
	return c.path
}

// FromFile reads the configuration from the provided file and stores it in the
// global singleton for this instance. Environment variables within the file
// are replaced with their values from the host system.
func FromFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := NewAtPath(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), c); err != nil {
		return errors.WithStack(err)
	}
	if c.AuthenticationToken == "" {
		return errors.New("config: an authentication token must be provided")
	}
	if c.System.ListWorkers < 1 {
		c.System.ListWorkers = 1
	}
	// Store this configuration in the global state.
	Set(c)
	return nil
}

// WriteToDisk writes the configuration to the disk. This is a thread safe
// operation and will only allow one write at a time. Additional calls while
// writing are queued up.
func WriteToDisk(c *Configuration) error {
	mu.Lock()
	defer mu.Unlock()

	//goland:noinspection GoVetCopyLock
	ccopy := *c
	// If debugging is set with the flag, don't save that to the configuration file,
	// otherwise you'll always end up in debug mode.
	if _debugViaFlag {
		ccopy.Debug = false
	}
	if c.path == "" {
		return errors.New("cannot write configuration, no path defined in struct")
	}
	b, err := yaml.Marshal(&ccopy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.path, b, 0o600); err != nil {
		return err
	}
	return nil
}

// ConfigureDirectories ensures that all the system directories exist on the
// system. These directories are created so that only the owner can read the
// data, and no other users.
func (sc SystemConfiguration) ConfigureDirectories() error {
	for _, dir := range []struct {
		name string
		path string
	}{
		{"root", sc.RootDirectory},
		{"log", sc.LogDirectory},
		{"data", sc.Data},
	} {
		log.WithField("path", dir.path).Debugf("ensuring %s directory exists", dir.name)
		if err := os.MkdirAll(dir.path, 0o700); err != nil {
			return errors.WithMessagef(err, "config: failed to create %s directory", dir.name)
		}
	}
	return nil
}

// UserDirectory returns the location of the files belonging to a single user.
func (sc SystemConfiguration) UserDirectory(user string) string {
	return filepath.Join(sc.Data, user)
}

// WriteLimitBytes returns the configured write limit in bytes per second.
func (sc SystemConfiguration) WriteLimitBytes() int64 {
	return int64(sc.WriteLimit) * 1024 * 1024
}
