package types

// OutputConfig selects a metric output plugin for a run.
type OutputConfig struct {
	// Type is the registered plugin name, such as console or influxdb.
	Type string `yaml:"type" json:"type"`

	// URL is the plugin target, such as a file path or server address.
	URL string `yaml:"url" json:"url"`

	// Options carries extra plugin settings merged into the config
	// argument as query parameters.
	Options map[string]string `yaml:"options" json:"options"`
}
