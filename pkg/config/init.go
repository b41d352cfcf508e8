package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# dittoraid Configuration File
#
# Every key can be overridden from the environment with the DITTORAID_
# prefix, e.g. DITTORAID_SERVER_PORT=4444 or DITTORAID_CACHE_ENABLED=true.

logging:
  level: INFO          # DEBUG, INFO, WARN, ERROR
  format: text         # text, json
  output: stdout       # stdout, stderr or a file path

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040
    profile_types: [cpu, alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines]

metrics:
  enabled: false
  port: %d

# Device server used by the read, write and trace commands.
server:
  address: %s
  port: %d
  dial_timeout: %s

# Client block cache (capacity in blocks, 2 to 4096).
cache:
  enabled: false
  capacity: %d

# Reference device started by "dittoraid serve".
device:
  address: %s
  port: %d
  max_connections: 0   # 0 = unlimited
  shutdown_timeout: %s
  store:
    type: memory       # memory, badger, s3
    # badger:
    #   path: /var/lib/dittoraid/blocks
    #   sync_writes: true
    #   value_log_file_size: 64Mi
    # s3:
    #   bucket: dittoraid-blocks
    #   region: us-east-1
    #   endpoint: http://localhost:9000
    #   prefix: array-1/
    #   force_path_style: true
`

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(renderTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func renderTemplate() string {
	return fmt.Sprintf(configTemplate,
		DefaultMetricsPort,
		DefaultServerAddress, DefaultPort, DefaultDialTimeout,
		DefaultCacheCapacity,
		DefaultDeviceAddress, DefaultPort, DefaultShutdownTimeout,
	)
}
