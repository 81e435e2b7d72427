package backup

import (
	"os"
	"strings"
)

// DefaultRetention is the number of artifacts kept after every dump
const DefaultRetention = 50

// Options configures the dump writer and the artifact store
type Options struct {
	Directory        string `mapstructure:"directory" yaml:"directory"`
	BatchSize        int    `mapstructure:"batch_size" yaml:"batch_size"`
	Compression      string `mapstructure:"compression" yaml:"compression"`
	CompressionLevel int    `mapstructure:"compression_level" yaml:"compression_level"`
	Retention        int    `mapstructure:"retention" yaml:"retention"`
	DefaultLabel     string `mapstructure:"default_label" yaml:"default_label"`
}

// SetDefaults fills unset fields with their defaults
func (o *Options) SetDefaults() {
	if o.Directory == "" {
		o.Directory = "backups"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Compression == "" {
		o.Compression = string(CompressionTypeGzip)
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.DefaultLabel == "" {
		o.DefaultLabel = "backup"
	}
}

// Validate checks the options
func (o *Options) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(o.Directory) == "" {
		errs.Add("directory", "backup directory is required", o.Directory)
	}
	if o.BatchSize < 1 || o.BatchSize > 10000 {
		errs.Add("batch_size", "batch size must be between 1 and 10000", o.BatchSize)
	}
	if _, err := ParseCompressionType(o.Compression); err != nil {
		errs.Add("compression", "compression must be one of gzip, zstd, lz4, none", o.Compression)
	}
	if o.Retention < 1 {
		errs.Add("retention", "retention must keep at least one artifact", o.Retention)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// CompressionType returns the parsed compression algorithm
func (o *Options) CompressionType() CompressionType {
	ct, err := ParseCompressionType(o.Compression)
	if err != nil {
		return CompressionTypeGzip
	}
	return ct
}

// MirrorProviderType selects the offsite mirror backend
type MirrorProviderType string

const (
	MirrorProviderNone  MirrorProviderType = "none"
	MirrorProviderS3    MirrorProviderType = "s3"
	MirrorProviderAzure MirrorProviderType = "azure"
	MirrorProviderGCS   MirrorProviderType = "gcs"
)

// MirrorConfig configures offsite replication of artifact files
type MirrorConfig struct {
	Provider MirrorProviderType `mapstructure:"provider" yaml:"provider"`
	Prefix   string             `mapstructure:"prefix" yaml:"prefix"`
	S3       *S3Config          `mapstructure:"s3" yaml:"s3,omitempty"`
	Azure    *AzureConfig       `mapstructure:"azure" yaml:"azure,omitempty"`
	GCS      *GCSConfig         `mapstructure:"gcs" yaml:"gcs,omitempty"`
}

// S3Config for Amazon S3 mirrors
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// AzureConfig for Azure Blob Storage mirrors
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
}

// GCSConfig for Google Cloud Storage mirrors
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
}

// SetDefaults sets default values for the mirror configuration
func (mc *MirrorConfig) SetDefaults() {
	if mc.Provider == "" {
		mc.Provider = MirrorProviderNone
	}
	if mc.Prefix == "" {
		mc.Prefix = "mysql-dumps/"
	}
	if mc.S3 != nil && mc.S3.Region == "" {
		mc.S3.Region = "us-east-1"
	}
	if mc.GCS != nil && mc.GCS.CredentialsPath == "" {
		mc.GCS.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
}

// Validate validates the mirror configuration for the selected provider
func (mc *MirrorConfig) Validate() error {
	var errs ValidationErrors

	switch mc.Provider {
	case "", MirrorProviderNone:
	case MirrorProviderS3:
		if mc.S3 == nil {
			errs.Add("s3", "S3 configuration is required for the s3 mirror", nil)
			break
		}
		if mc.S3.Bucket == "" {
			errs.Add("s3.bucket", "S3 bucket name is required", mc.S3.Bucket)
		}
		if mc.S3.Region == "" {
			errs.Add("s3.region", "S3 region is required", mc.S3.Region)
		}
		if (mc.S3.AccessKey == "") != (mc.S3.SecretKey == "") {
			errs.Add("s3.access_key", "S3 access key and secret key must be set together", nil)
		}
	case MirrorProviderAzure:
		if mc.Azure == nil {
			errs.Add("azure", "Azure configuration is required for the azure mirror", nil)
			break
		}
		if mc.Azure.AccountName == "" {
			errs.Add("azure.account_name", "Azure account name is required", mc.Azure.AccountName)
		}
		if mc.Azure.AccountKey == "" {
			errs.Add("azure.account_key", "Azure account key is required", nil)
		}
		if mc.Azure.ContainerName == "" {
			errs.Add("azure.container_name", "Azure container name is required", mc.Azure.ContainerName)
		}
	case MirrorProviderGCS:
		if mc.GCS == nil {
			errs.Add("gcs", "GCS configuration is required for the gcs mirror", nil)
			break
		}
		if mc.GCS.Bucket == "" {
			errs.Add("gcs.bucket", "GCS bucket name is required", mc.GCS.Bucket)
		}
	default:
		errs.Add("provider", "mirror provider must be one of none, s3, azure, gcs", mc.Provider)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
