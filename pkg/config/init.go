package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# vidforge Configuration File
#
# Every value can be overridden with an environment variable named after its
# path, prefixed with VIDFORGE_ (for example VIDFORGE_STORAGE_QUOTA=500GiB).
# The log level and the storage quota are reloaded when this file changes;
# everything else requires a restart.

`

// fieldComments are attached to keys of the generated file, by dotted path.
var fieldComments = map[string]string{
	"logging":                           "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr or a file path)",
	"server":                            "Server-wide settings",
	"metrics":                           "Prometheus endpoint served at :<port>/metrics",
	"storage":                           "Upload storage",
	"storage.quota":                     "Byte ceiling for everything under path, e.g. 4TiB, 500GB or plain bytes",
	"storage.base_name":                 "Uploads are stored as <base_name>.<media type>, then <base_name>_1.<media type> and so on",
	"processing":                        "ffmpeg processing. Outputs are written as processed_<stored name> under output_dir",
	"jobs":                              "Job ledger: memory or badger",
	"archive":                           "Archive of processed files: none or s3",
	"archive.s3":                        "Only used when type is s3. endpoint enables path-style addressing for S3 compatible services",
	"adapters":                          "Protocol adapters",
	"adapters.upload.max_payload_bytes": "Requests declaring a larger payload are rejected before any of it is read",
	"adapters.upload.accept_rate":       "Connections admitted per second across all clients, 0 for no limit",
}

// InitConfig writes a default configuration file to the default location and
// returns its path. An existing file is only replaced when force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with explanatory comments.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	annotate(root, "")

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}

func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if comment, ok := fieldComments[path]; ok {
			key.HeadComment = comment
		}
		annotate(value, path)
	}
}
