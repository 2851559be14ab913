//nolint:lll
package config

// Config represents the complete configuration for the twoview application.
// It includes settings for all commands (reconstruct, disparity, batch, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Stage configuration
	Disparity DisparityConfig `mapstructure:"disparity" yaml:"disparity" json:"disparity"`
	Rectify   RectifyConfig   `mapstructure:"rectify" yaml:"rectify" json:"rectify"`
	Filter    FilterConfig    `mapstructure:"filter" yaml:"filter" json:"filter"`

	// Match on luminance instead of RGB
	Grayscale bool `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// DisparityConfig contains block matching settings.
type DisparityConfig struct {
	Kernel               string  `mapstructure:"kernel" yaml:"kernel" json:"kernel"`
	PatchSize            int     `mapstructure:"patch_size" yaml:"patch_size" json:"patch_size"`
	MaxDisparity         int     `mapstructure:"max_disparity" yaml:"max_disparity" json:"max_disparity"`
	ConsistencyTolerance float64 `mapstructure:"consistency_tolerance" yaml:"consistency_tolerance" json:"consistency_tolerance"`
	Subpixel             bool    `mapstructure:"subpixel" yaml:"subpixel" json:"subpixel"`
	Workers              int     `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// RectifyConfig contains rectification settings.
type RectifyConfig struct {
	PadX           int     `mapstructure:"pad_x" yaml:"pad_x" json:"pad_x"`
	PadY           int     `mapstructure:"pad_y" yaml:"pad_y" json:"pad_y"`
	MaxOutputScale float64 `mapstructure:"max_output_scale" yaml:"max_output_scale" json:"max_output_scale"`
	EnforceOrder   bool    `mapstructure:"enforce_order" yaml:"enforce_order" json:"enforce_order"`
	DebugDir       string  `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// FilterConfig contains point filtering settings. A zero z_max or max_depth means unbounded.
type FilterConfig struct {
	ZMin float64 `mapstructure:"z_min" yaml:"z_min" json:"z_min"`
	ZMax float64 `mapstructure:"z_max" yaml:"z_max" json:"z_max"`

	// Background removal: none, value, color or depth
	Background     string  `mapstructure:"background" yaml:"background" json:"background"`
	ValueThreshold float64 `mapstructure:"value_threshold" yaml:"value_threshold" json:"value_threshold"`
	CloseKernel    int     `mapstructure:"close_kernel" yaml:"close_kernel" json:"close_kernel"`
	Color          string  `mapstructure:"color" yaml:"color" json:"color"`
	ColorTolerance float64 `mapstructure:"color_tolerance" yaml:"color_tolerance" json:"color_tolerance"`
	MaxDepth       float64 `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth"`

	Outliers OutlierConfig `mapstructure:"outliers" yaml:"outliers" json:"outliers"`
}

// OutlierConfig contains statistical outlier removal settings.
type OutlierConfig struct {
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Neighbors int     `mapstructure:"neighbors" yaml:"neighbors" json:"neighbors"`
	StdRatio  float64 `mapstructure:"std_ratio" yaml:"std_ratio" json:"std_ratio"`
}

// OutputConfig contains output settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	Frame       string `mapstructure:"frame" yaml:"frame" json:"frame"`
	CloudFormat string `mapstructure:"cloud_format" yaml:"cloud_format" json:"cloud_format"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int   `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool  `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool  `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Views           []int `mapstructure:"views" yaml:"views" json:"views"`
}
