// Package config holds the decoded form of one storage.<name> section.
package config

// StorageConfig is one storage connection. Only the fields of the chosen Type are read:
// BaseDir for "local"; BucketName, CredentialsFile and Endpoint for "gcs".
// An Endpoint without CredentialsFile on gcs is treated as an emulator and skips authentication.
type StorageConfig struct {
	Type            string `yaml:"type"`
	BucketName      string `yaml:"bucket_name"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
	BaseDir         string `yaml:"base_dir"`
}
