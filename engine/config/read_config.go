package config

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE         = "sectorworld.ini"
	_DEFAULT_PORT                = 14000
	_DEFAULT_HTTP_IP             = "127.0.0.1"
	_DEFAULT_LOG_LEVEL           = "info"
	_DEFAULT_TICK                = time.Millisecond * 100
	_DEFAULT_SECTOR_IDLE_TIMEOUT = time.Minute * 5
	_DEFAULT_HEARTBEAT_TIMEOUT   = time.Minute
	_DEFAULT_WORKERS             = 4
	_DEFAULT_STORAGE_DB          = "sectorworld"
	_DEFAULT_HOME_SECTOR         = "home"
)

var (
	configFilePath    = _DEFAULT_CONFIG_FILE
	sectorWorldConfig *SectorWorldConfig
	configLock        sync.Mutex
)

// ServerConfig defines fields of the [server] section
type ServerConfig struct {
	Bind              string // comma separated IP literals, empty for all interfaces
	Port              int
	KCPPort           int // 0 disables the KCP listener
	HTTPIp            string
	HTTPPort          int // 0 disables pprof, metrics and websocket
	Password          string
	Tick              time.Duration
	SectorIdleTimeout time.Duration // 0 keeps idle sectors forever
	HeartbeatTimeout  time.Duration // 0 disables heartbeat checks
	Workers           int
	LogFile           string
	LogStderr         bool
	LogLevel          string
	GoMaxProcs        int
	HomeSector        string // where new players spawn
	PreloadSectors    []string
}

// StorageConfig defines fields of the [storage] section
type StorageConfig struct {
	Type       string // filesystem, memory, redis, redis_cluster, mongodb, sqlite
	Directory  string // filesystem
	Url        string // redis, mongodb, sqlite
	DB         string // redis, mongodb
	Collection string // mongodb
	StartNodes []string
}

// SectorWorldConfig defines the total config file structure
type SectorWorldConfig struct {
	Server  ServerConfig
	Storage StorageConfig
}

// envOverrides are the settings that can be replaced from the environment
type envOverrides struct {
	Port        int    `env:"SECTORWORLD_PORT"`
	Password    string `env:"SECTORWORLD_PASSWORD"`
	TickUS      int64  `env:"SECTORWORLD_TICK_US"`
	StorageType string `env:"SECTORWORLD_STORAGE_TYPE"`
	StorageUrl  string `env:"SECTORWORLD_STORAGE_URL"`
}

// SetConfigFile sets the config file path (sectorworld.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config, reading the file on first use
func Get() *SectorWorldConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if sectorWorldConfig == nil {
		gwlog.Infof("Using config file: %s", configFilePath)
		sectorWorldConfig = mustRead(configFilePath)
	}
	return sectorWorldConfig
}

// Reload forces the config to be read again
func Reload() *SectorWorldConfig {
	configLock.Lock()
	sectorWorldConfig = nil
	configLock.Unlock()

	return Get()
}

// GetServer returns the server config
func GetServer() *ServerConfig {
	return &Get().Server
}

// GetStorage returns the storage config
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// Read parses an ini source (file path or []byte) and applies the environment overrides
//
// Invalid settings are reported as errors instead of panics.
func Read(source interface{}) (cfg *SectorWorldConfig, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = errors.Errorf("%v", r)
			}
		}
	}()
	return readConfig(source)
}

func mustRead(source interface{}) *SectorWorldConfig {
	cfg, err := readConfig(source)
	checkConfigError(err, "")
	return cfg
}

func readConfig(source interface{}) (*SectorWorldConfig, error) {
	iniFile, err := ini.Load(source)
	if err != nil {
		return nil, errors.Wrap(err, "load ini")
	}

	config := &SectorWorldConfig{}
	readServerConfig(iniFile.Section("server"), &config.Server)
	readStorageConfig(iniFile.Section("storage"), &config.Storage)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if sec.Name() != ini.DefaultSection && secName != "server" && secName != "storage" {
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}
	validateServerConfig(&config.Server)
	validateStorageConfig(&config.Storage)
	return config, nil
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	sc.Port = _DEFAULT_PORT
	sc.HTTPIp = _DEFAULT_HTTP_IP
	sc.Tick = _DEFAULT_TICK
	sc.SectorIdleTimeout = _DEFAULT_SECTOR_IDLE_TIMEOUT
	sc.HeartbeatTimeout = _DEFAULT_HEARTBEAT_TIMEOUT
	sc.Workers = _DEFAULT_WORKERS
	sc.LogFile = "sectorworld.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.HomeSector = _DEFAULT_HOME_SECTOR

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "bind" {
			sc.Bind = key.MustString(sc.Bind)
		} else if name == "port" {
			sc.Port = key.MustInt(sc.Port)
		} else if name == "kcp_port" {
			sc.KCPPort = key.MustInt(sc.KCPPort)
		} else if name == "http_ip" {
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		} else if name == "http_port" {
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		} else if name == "password" {
			sc.Password = key.String()
		} else if name == "tick_us" {
			sc.Tick = time.Microsecond * time.Duration(key.MustInt64(int64(_DEFAULT_TICK/time.Microsecond)))
		} else if name == "sector_idle_timeout" {
			sc.SectorIdleTimeout = time.Second * time.Duration(key.MustInt(int(_DEFAULT_SECTOR_IDLE_TIMEOUT/time.Second)))
		} else if name == "heartbeat_timeout" {
			sc.HeartbeatTimeout = time.Second * time.Duration(key.MustInt(int(_DEFAULT_HEARTBEAT_TIMEOUT/time.Second)))
		} else if name == "workers" {
			sc.Workers = key.MustInt(sc.Workers)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "gomaxprocs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else if name == "home_sector" {
			sc.HomeSector = key.MustString(sc.HomeSector)
		} else if name == "preload_sectors" {
			sc.PreloadSectors = nil
			for _, id := range key.Strings(",") {
				if id != "" {
					sc.PreloadSectors = append(sc.PreloadSectors, id)
				}
			}
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readStorageConfig(sec *ini.Section, config *StorageConfig) {
	// setup default values
	config.Type = "filesystem"
	config.Directory = "_sector_storage"
	config.DB = _DEFAULT_STORAGE_DB
	config.Collection = "__kv__"

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			config.Type = key.MustString(config.Type)
		} else if name == "directory" {
			config.Directory = key.MustString(config.Directory)
		} else if name == "url" {
			config.Url = key.MustString(config.Url)
		} else if name == "db" {
			config.DB = key.MustString(config.DB)
		} else if name == "collection" {
			config.Collection = key.MustString(config.Collection)
		} else if strings.HasPrefix(name, "start_nodes_") {
			config.StartNodes = append(config.StartNodes, key.String())
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	sort.Strings(config.StartNodes)

	if config.Type == "redis" && config.DB == _DEFAULT_STORAGE_DB {
		config.DB = "0"
	}
}

func applyEnv(config *SectorWorldConfig) error {
	o := envOverrides{
		Port:        config.Server.Port,
		Password:    config.Server.Password,
		TickUS:      int64(config.Server.Tick / time.Microsecond),
		StorageType: config.Storage.Type,
		StorageUrl:  config.Storage.Url,
	}
	if err := env.Parse(&o); err != nil {
		return errors.Wrap(err, "parse environment")
	}
	config.Server.Port = o.Port
	config.Server.Password = o.Password
	config.Server.Tick = time.Duration(o.TickUS) * time.Microsecond
	if o.StorageType != config.Storage.Type {
		config.Storage.Type = o.StorageType
		if config.Storage.Type == "redis" && config.Storage.DB == _DEFAULT_STORAGE_DB {
			config.Storage.DB = "0"
		}
	}
	config.Storage.Url = o.StorageUrl
	return nil
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}

func validateServerConfig(sc *ServerConfig) {
	if sc.Port <= 0 || sc.Port > 65535 {
		gwlog.Panicf("invalid port: %d", sc.Port)
	}
	if sc.KCPPort < 0 || sc.KCPPort > 65535 {
		gwlog.Panicf("invalid kcp_port: %d", sc.KCPPort)
	}
	if sc.Tick <= 0 {
		gwlog.Panicf("tick_us must be positive")
	}
	if sc.Workers <= 0 {
		gwlog.Panicf("workers must be positive")
	}
	if sc.HomeSector == "" {
		gwlog.Panicf("home_sector must not be empty")
	}
	if sc.SectorIdleTimeout < 0 || sc.HeartbeatTimeout < 0 {
		gwlog.Panicf("timeouts must not be negative")
	}
}

func validateStorageConfig(config *StorageConfig) {
	if config.Type == "filesystem" {
		// directory must be set
		if config.Directory == "" {
			gwlog.Panicf("directory is not set in %s storage config", config.Type)
		}
	} else if config.Type == "memory" {
		// nothing to check
	} else if config.Type == "mongodb" {
		if config.Url == "" || config.DB == "" || config.Collection == "" {
			fmt.Fprintf(gwlog.GetOutput(), "%s\n", DumpPretty(config))
			gwlog.Panicf("invalid %s storage config above", config.Type)
		}
	} else if config.Type == "redis" {
		if config.Url == "" {
			gwlog.Panicf("redis host is not set")
		}
		if _, err := strconv.Atoi(config.DB); err != nil {
			gwlog.Panic(errors.Wrap(err, "redis db must be integer"))
		}
	} else if config.Type == "redis_cluster" {
		if len(config.StartNodes) == 0 {
			gwlog.Panicf("must have at least 1 start_nodes for [storage].redis_cluster")
		}
		for _, s := range config.StartNodes {
			if s == "" {
				gwlog.Panicf("start_nodes must not be empty")
			}
		}
	} else if config.Type == "sqlite" {
		if config.Url == "" {
			gwlog.Panicf("url is not set in %s storage config", config.Type)
		}
	} else {
		gwlog.Panicf("unknown storage type: %s", config.Type)
	}
}
