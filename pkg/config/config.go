package config

// Config is the root application configuration. Fields carry yaml tags for
// file-based overrides; Default() is used when no file is present.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Server ServerConfig `yaml:"http-server"`
	DB     DBConfig     `yaml:"db"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DBConfig struct {
	Path       string           `yaml:"path"`
	SyncWrites bool             `yaml:"sync_writes"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Memtable   MemtableConfig   `yaml:"memtable"`
	Compaction CompactionConfig `yaml:"compaction"`
}

// BridgeConfig sizes the request queue between client handles and the
// database worker. Capacity bounds the number of in-flight requests; senders
// block when it is full.
type BridgeConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

type MemtableConfig struct {
	FlushThresholdBytes int64 `yaml:"flush_threshold"`
}

type CompactionConfig struct {
	L0CompactThreshold int     `yaml:"l0_compact_threshold"`
	BloomFPRate        float64 `yaml:"bloom_fp_rate"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		DB: DBConfig{
			Path:       "./data",
			SyncWrites: false,
			Bridge: BridgeConfig{
				QueueCapacity: 32,
			},
			Memtable: MemtableConfig{
				FlushThresholdBytes: 4 * 1024 * 1024,
			},
			Compaction: CompactionConfig{
				L0CompactThreshold: 4,
				BloomFPRate:        0.01,
			},
		},
	}
}
