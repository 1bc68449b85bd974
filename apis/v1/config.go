package v1

// Config is the archivekit configuration document.
type Config struct {
	// Drivers controls which archive drivers are registered and in which order.
	Drivers DriversSpec `yaml:"drivers" json:"drivers" mapstructure:"drivers"`

	// Remote configures downloads of http(s) archives.
	Remote RemoteSpec `yaml:"remote" json:"remote" mapstructure:"remote"`

	// Sinks configures extraction targets other than the local filesystem.
	Sinks SinksSpec `yaml:"sinks" json:"sinks" mapstructure:"sinks"`
}

// DriversSpec configures driver registration.
type DriversSpec struct {
	// Disabled lists driver names that are never registered.
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty" mapstructure:"disabled" validate:"dive,oneof=zip tar 7z rar compressed iso 7z-cli cabextract"`

	// Order lists driver names to try first, in order. Unlisted drivers follow
	// in their default order.
	Order []string `yaml:"order,omitempty" json:"order,omitempty" mapstructure:"order" validate:"dive,oneof=zip tar 7z rar compressed iso 7z-cli cabextract"`

	// Timeout bounds each external command. Defaults to "5m".
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`

	// Binaries overrides the executables used by command-line drivers.
	Binaries BinariesSpec `yaml:"binaries" json:"binaries" mapstructure:"binaries"`
}

// BinariesSpec holds paths or names of external executables. Empty values
// are looked up in PATH.
type BinariesSpec struct {
	SevenZip   string `yaml:"seven_zip,omitempty" json:"seven_zip,omitempty" mapstructure:"seven_zip" template:""`
	Cabextract string `yaml:"cabextract,omitempty" json:"cabextract,omitempty" mapstructure:"cabextract" template:""`
	Gzip       string `yaml:"gzip,omitempty" json:"gzip,omitempty" mapstructure:"gzip" template:""`
}

// RemoteSpec configures http(s) archive downloads.
type RemoteSpec struct {
	// Timeout for a whole download. Defaults to "5m".
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`

	// UserAgent sent with requests. Defaults to "archivekit/0.1.0".
	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty" mapstructure:"user_agent"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty" mapstructure:"headers"`

	// Insecure skips TLS certificate verification.
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty" mapstructure:"insecure"`
}

// SinksSpec configures extraction sinks.
type SinksSpec struct {
	S3 *S3SinkSpec `yaml:"s3,omitempty" json:"s3,omitempty" mapstructure:"s3"`
}

// S3SinkSpec configures extraction to S3-compatible object storage.
type S3SinkSpec struct {
	Bucket string `yaml:"bucket" json:"bucket" mapstructure:"bucket" validate:"required" template:""`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty" mapstructure:"prefix" template:""`

	Region string `yaml:"region,omitempty" json:"region,omitempty" mapstructure:"region" template:""`

	// Endpoint for S3-compatible services (R2, MinIO).
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" mapstructure:"endpoint" template:""`

	Credentials *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty" mapstructure:"credentials"`

	// Metadata is attached to every uploaded object.
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty" mapstructure:"metadata"`

	// ForcePathStyle uses path-style addressing, required by most MinIO setups.
	ForcePathStyle bool `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty" mapstructure:"force_path_style"`
}

// S3Credentials are static credentials. Omit to use the default AWS chain.
type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" mapstructure:"access_key_id" validate:"required" template:""`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" mapstructure:"secret_access_key" validate:"required" template:""`
}
