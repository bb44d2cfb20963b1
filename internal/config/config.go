package config

import (
	"chordkv/internal/logger"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// FaultToleranceConfig governs the periodic stabilization loops that keep
// ring pointers and the replica chain correct under churn.
type FaultToleranceConfig struct {
	SuccessorListSize     int           `yaml:"successorListSize"`
	StabilizationInterval time.Duration `yaml:"stabilizationInterval"`
	FailureTimeout        time.Duration `yaml:"failureTimeout"`
}

// OwnershipRepairConfig governs the periodic pass that moves any locally
// held primary (depth-0) item whose true owner has moved (e.g. after a promotion) to that
// owner.
type OwnershipRepairConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type Route53RegisterConfig struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
}

type CoreDNSRegisterConfig struct {
	EtcdEndpoints []string `yaml:"etcdEndpoints"`
	BasePath      string   `yaml:"basePath"`
	Domain        string   `yaml:"domain"`
}

// RegisterConfig governs publishing this node's address under a discovery
// backend so future joiners can find it. Route53 publishes SRV records
// directly to a hosted zone; CoreDNS publishes them to etcd, for clusters
// running etcd's DNS plugin.
type RegisterConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Type    string                `yaml:"type"` // "route53" | "coredns"
	TTL     int64                 `yaml:"ttl"`
	Route53 Route53RegisterConfig `yaml:"route53"`
	CoreDNS CoreDNSRegisterConfig `yaml:"coredns"`
}

type BootstrapConfig struct {
	Mode     string         `yaml:"mode"`
	DNSName  string         `yaml:"dnsName"`
	SRV      bool           `yaml:"srv"`
	Port     int            `yaml:"port"`
	Peers    []string       `yaml:"peers"`
	Register RegisterConfig `yaml:"register"`
}

// RingConfig describes the shape of the ring this node participates in:
// the identifier space, the network-exposure mode, the replication policy,
// and the background maintenance loops that keep membership and data
// consistent.
type RingConfig struct {
	IDBits          int                   `yaml:"idBits"`
	Mode            string                `yaml:"mode"`
	ReplicaFactor   int                   `yaml:"replicaFactor"`
	ConsistencyMode string                `yaml:"consistencyMode"`
	FaultTolerance  FaultToleranceConfig  `yaml:"faultTolerance"`
	OwnershipRepair OwnershipRepairConfig `yaml:"ownershipRepair"`
	Bootstrap       BootstrapConfig       `yaml:"bootstrap"`
}

type NodeConfig struct {
	Id   string `yaml:"id"`
	Bind string `yaml:"bind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Ring      RingConfig      `yaml:"ring"`
	Node      NodeConfig      `yaml:"node"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig loads the configuration from a YAML file at the given path.
//
// Behavior:
//   - Reads the file contents from disk.
//   - Unmarshals the YAML data into a Config struct.
//   - Returns the parsed configuration or an error if reading or parsing fails.
//
// This function performs only syntactic parsing of the YAML file.
// To validate the configuration structure and check for missing or invalid
// fields, call cfg.ValidateConfig() after loading.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
//
// Behavior:
//   - This method modifies only selected fields of the Config struct that are
//     commonly node-specific or deployment-dependent.
//   - For each supported field, if a corresponding environment variable is set,
//     its value overrides the value loaded from the YAML configuration file.
//   - Supported overrides include:
//     NODE_ID              -> cfg.Node.Id
//     NODE_BIND            -> cfg.Node.Bind
//     NODE_HOST            -> cfg.Node.Host
//     NODE_PORT            -> cfg.Node.Port
//     REPLICA_FACTOR       -> cfg.Ring.ReplicaFactor
//     CONSISTENCY_MODE     -> cfg.Ring.ConsistencyMode
//     BOOTSTRAP_MODE       -> cfg.Ring.Bootstrap.Mode
//     BOOTSTRAP_DNSNAME    -> cfg.Ring.Bootstrap.DNSName
//     BOOTSTRAP_SRV        -> cfg.Ring.Bootstrap.SRV
//     BOOTSTRAP_PORT       -> cfg.Ring.Bootstrap.Port
//     BOOTSTRAP_PEERS      -> cfg.Ring.Bootstrap.Peers (comma-separated list)
//     REGISTER_ENABLED     -> cfg.Ring.Bootstrap.Register.Enabled
//     REGISTER_ZONE_ID     -> cfg.Ring.Bootstrap.Register.Route53.HostedZoneID
//     REGISTER_SUFFIX      -> cfg.Ring.Bootstrap.Register.Route53.DomainSuffix, cfg.Ring.Bootstrap.Register.CoreDNS.Domain
//     REGISTER_TTL         -> cfg.Ring.Bootstrap.Register.TTL
//     TRACE_ENABLED        -> cfg.Telemetry.Tracing.Enabled
//     TRACE_EXPORTER       -> cfg.Telemetry.Tracing.Exporter
//     TRACE_ENDPOINT       -> cfg.Telemetry.Tracing.Endpoint
//     LOGGER_ENABLED      -> cfg.Logger.Active
//     LOGGER_LEVEL        -> cfg.Logger.Level
//     LOGGER_ENCODING     -> cfg.Logger.Encoding
//     LOGGER_MODE         -> cfg.Logger.Mode
//     LOGGER_FILE_PATH    -> cfg.Logger.File.Path
//
// Type conversions:
//   - Integer fields (e.g., NODE_PORT, BOOTSTRAP_PORT) are parsed using strconv.Atoi;
//     invalid values are ignored.
//   - Boolean field BOOTSTRAP_SRV accepts "true", "1", or "yes" (case-insensitive)
//     as true; any other non-empty value is treated as false.
//   - Lists such as BOOTSTRAP_PEERS are parsed by splitting the string on commas.
//
// Usage:
//
//	cfg, _ := LoadConfig("config.yaml")
//	cfg.ApplyEnvOverrides()
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Node.Id = v
	}
	if v := os.Getenv("NODE_BIND"); v != "" {
		cfg.Node.Bind = v
	} else if cfg.Node.Bind == "" {
		cfg.Node.Bind = "0.0.0.0" // default
	}
	if v := os.Getenv("NODE_HOST"); v != "" {
		cfg.Node.Host = v
	}
	if v := os.Getenv("NODE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Node.Port = port
		}
	}

	if v := os.Getenv("REPLICA_FACTOR"); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.Ring.ReplicaFactor = r
		}
	}
	if v := os.Getenv("CONSISTENCY_MODE"); v != "" {
		cfg.Ring.ConsistencyMode = v
	}

	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.Ring.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_DNSNAME"); v != "" {
		cfg.Ring.Bootstrap.DNSName = v
	}
	if v := os.Getenv("BOOTSTRAP_SRV"); v != "" {
		v = strings.ToLower(v)
		cfg.Ring.Bootstrap.SRV = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("BOOTSTRAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Ring.Bootstrap.Port = port
		}
	}
	if v := os.Getenv("BOOTSTRAP_PEERS"); v != "" {
		cfg.Ring.Bootstrap.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv("REGISTER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Ring.Bootstrap.Register.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("REGISTER_TYPE"); v != "" {
		cfg.Ring.Bootstrap.Register.Type = v
	}
	if v := os.Getenv("REGISTER_ZONE_ID"); v != "" {
		cfg.Ring.Bootstrap.Register.Route53.HostedZoneID = v
	}
	if v := os.Getenv("REGISTER_SUFFIX"); v != "" {
		cfg.Ring.Bootstrap.Register.Route53.DomainSuffix = v
		cfg.Ring.Bootstrap.Register.CoreDNS.Domain = v
	}
	if v := os.Getenv("REGISTER_TTL"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ring.Bootstrap.Register.TTL = ttl
		}
	}
	if v := os.Getenv("REGISTER_ETCD_ENDPOINTS"); v != "" {
		cfg.Ring.Bootstrap.Register.CoreDNS.EtcdEndpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Logger.Active = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

// ValidateConfig performs structural validation of the loaded configuration.
//
// The validation checks only the syntactic and structural correctness of the
// configuration file, not the semantic correctness of protocol parameters.
// All detected issues are accumulated and returned as a single error. If the
// configuration is valid, the method returns nil.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	// --- Logger ---
	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	// --- Ring ---
	if cfg.Ring.IDBits <= 0 {
		errs = append(errs, "ring.idBits must be > 0")
	}
	switch cfg.Ring.Mode {
	case "public", "private":
	default:
		errs = append(errs, fmt.Sprintf("invalid ring.mode: %s", cfg.Ring.Mode))
	}
	if cfg.Ring.ReplicaFactor <= 0 {
		errs = append(errs, "ring.replicaFactor must be > 0")
	}
	switch cfg.Ring.ConsistencyMode {
	case "eventual", "chain":
	default:
		errs = append(errs, fmt.Sprintf("invalid ring.consistencyMode: %s (must be eventual or chain)", cfg.Ring.ConsistencyMode))
	}
	if cfg.Ring.FaultTolerance.SuccessorListSize <= 0 {
		errs = append(errs, "ring.faultTolerance.successorListSize must be > 0")
	}
	if cfg.Ring.FaultTolerance.StabilizationInterval <= 0 {
		errs = append(errs, "ring.faultTolerance.stabilizationInterval must be > 0")
	}
	if cfg.Ring.FaultTolerance.FailureTimeout <= 0 {
		errs = append(errs, "ring.faultTolerance.failureTimeout must be > 0")
	}
	if cfg.Ring.ReplicaFactor-1 > cfg.Ring.FaultTolerance.SuccessorListSize {
		errs = append(errs, "ring.faultTolerance.successorListSize must be >= ring.replicaFactor-1")
	}
	if cfg.Ring.OwnershipRepair.Interval <= 0 {
		errs = append(errs, "ring.ownershipRepair.interval must be > 0")
	}

	// --- Bootstrap ---
	b := cfg.Ring.Bootstrap
	switch b.Mode {
	case "dns":
		if b.DNSName == "" {
			errs = append(errs, "bootstrap.dnsName is required in mode=dns")
		}
		if !b.SRV && b.Port <= 0 {
			errs = append(errs, "bootstrap.port must be > 0 when using A/AAAA (srv=false)")
		}
		if b.Register.Enabled {
			if b.Register.TTL <= 0 {
				errs = append(errs, "bootstrap.register.ttl must be > 0 when register.enabled=true")
			}
			switch b.Register.Type {
			case "route53":
				if b.Register.Route53.HostedZoneID == "" {
					errs = append(errs, "bootstrap.register.route53.hostedZoneId is required for type=route53")
				}
				if b.Register.Route53.DomainSuffix == "" {
					errs = append(errs, "bootstrap.register.route53.domainSuffix is required for type=route53")
				}
			case "coredns":
				if len(b.Register.CoreDNS.EtcdEndpoints) == 0 {
					errs = append(errs, "bootstrap.register.coredns.etcdEndpoints is required for type=coredns")
				}
				if b.Register.CoreDNS.Domain == "" {
					errs = append(errs, "bootstrap.register.coredns.domain is required for type=coredns")
				}
			default:
				errs = append(errs, fmt.Sprintf("invalid bootstrap.register.type: %s (must be route53 or coredns)", b.Register.Type))
			}
		}
	case "static":
		for _, p := range b.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
			}
		}
	case "route53":
		if b.Register.Route53.HostedZoneID == "" {
			errs = append(errs, "bootstrap.register.route53.hostedZoneId is required in mode=route53")
		}
		if b.Register.Route53.DomainSuffix == "" {
			errs = append(errs, "bootstrap.register.route53.domainSuffix is required in mode=route53")
		}
	case "init":
		// first node in the ring, no extra constraints
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be dns, static, route53 or init)", b.Mode))
	}

	// --- Node ---
	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}

	// --- Telemetry ---
	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "jaeger", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Endpoint == "" {
			errs = append(errs, "telemetry.tracing.endpoint is required")
		}
	}

	// --- Return result ---
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig prints the loaded configuration at DEBUG level.
// This is useful for debugging startup issues and verifying
// that the configuration file has been parsed correctly.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("Loaded configuration",
		// Logger
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),
		logger.F("logger.file.maxSizeMB", cfg.Logger.File.MaxSize),
		logger.F("logger.file.maxBackups", cfg.Logger.File.MaxBackups),
		logger.F("logger.file.maxAgeDays", cfg.Logger.File.MaxAge),
		logger.F("logger.file.compress", cfg.Logger.File.Compress),

		// Ring
		logger.F("ring.idBits", cfg.Ring.IDBits),
		logger.F("ring.mode", cfg.Ring.Mode),
		logger.F("ring.replicaFactor", cfg.Ring.ReplicaFactor),
		logger.F("ring.consistencyMode", cfg.Ring.ConsistencyMode),

		// fault tolerance
		logger.F("ring.faultTolerance.successorListSize", cfg.Ring.FaultTolerance.SuccessorListSize),
		logger.F("ring.faultTolerance.stabilizationInterval", cfg.Ring.FaultTolerance.StabilizationInterval.String()),
		logger.F("ring.faultTolerance.stabilizationIntervalMs", cfg.Ring.FaultTolerance.StabilizationInterval.Milliseconds()),
		logger.F("ring.faultTolerance.failureTimeout", cfg.Ring.FaultTolerance.FailureTimeout.String()),
		logger.F("ring.faultTolerance.failureTimeoutMs", cfg.Ring.FaultTolerance.FailureTimeout.Milliseconds()),

		// ownership repair
		logger.F("ring.ownershipRepair.interval", cfg.Ring.OwnershipRepair.Interval.String()),
		logger.F("ring.ownershipRepair.intervalMs", cfg.Ring.OwnershipRepair.Interval.Milliseconds()),

		// bootstrap
		logger.F("ring.bootstrap.mode", cfg.Ring.Bootstrap.Mode),
		logger.F("ring.bootstrap.dnsName", cfg.Ring.Bootstrap.DNSName),
		logger.F("ring.bootstrap.srv", cfg.Ring.Bootstrap.SRV),
		logger.F("ring.bootstrap.port", cfg.Ring.Bootstrap.Port),
		logger.F("ring.bootstrap.peers", cfg.Ring.Bootstrap.Peers),

		// register
		logger.F("ring.bootstrap.register.enabled", cfg.Ring.Bootstrap.Register.Enabled),
		logger.F("ring.bootstrap.register.type", cfg.Ring.Bootstrap.Register.Type),
		logger.F("ring.bootstrap.register.ttl", cfg.Ring.Bootstrap.Register.TTL),
		logger.F("ring.bootstrap.register.route53.hostedZoneId", cfg.Ring.Bootstrap.Register.Route53.HostedZoneID),
		logger.F("ring.bootstrap.register.route53.domainSuffix", cfg.Ring.Bootstrap.Register.Route53.DomainSuffix),
		logger.F("ring.bootstrap.register.coredns.basePath", cfg.Ring.Bootstrap.Register.CoreDNS.BasePath),
		logger.F("ring.bootstrap.register.coredns.domain", cfg.Ring.Bootstrap.Register.CoreDNS.Domain),

		// Node
		logger.F("node.id", cfg.Node.Id),
		logger.F("node.bind", cfg.Node.Bind),
		logger.F("node.port", cfg.Node.Port),

		// Telemetry
		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
		logger.F("telemetry.tracing.endpoint", cfg.Telemetry.Tracing.Endpoint),
	)
}
