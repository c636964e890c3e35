// Package blob provides options for the document blob store (Google Drive, S3 or a local directory).
package blob

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported backends.
const (
	BackendDrive = "drive"
	BackendS3    = "s3"
	BackendLocal = "local"
)

const redacted = "[REDACTED]"

// Options contains blob store configuration.
type Options struct {
	// Backend selects the store implementation: drive, s3 or local.
	Backend string `json:"backend" mapstructure:"backend"`

	// FolderID is the default input folder when a request does not name one.
	// Drive folder id, S3 key prefix or a path relative to RootDir.
	FolderID string `json:"folder-id" mapstructure:"folder-id"`

	// OutputRootName is the folder created under the input folder for OCR JSON output.
	OutputRootName string `json:"output-root-name" mapstructure:"output-root-name"`

	// Google Drive.
	CredentialsFile string `json:"credentials-file" mapstructure:"credentials-file"`
	TokenFile       string `json:"token-file" mapstructure:"token-file"`
	ClientID        string `json:"client-id" mapstructure:"client-id"`
	ClientSecret    string `json:"-" mapstructure:"client-secret"`
	// DriveRPS throttles Drive API calls; Google allows about 10 per second per user.
	DriveRPS   float64 `json:"drive-rps" mapstructure:"drive-rps"`
	DriveBurst int     `json:"drive-burst" mapstructure:"drive-burst"`

	// S3.
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Region    string `json:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access-key" mapstructure:"access-key"`
	SecretKey string `json:"-" mapstructure:"secret-key"`

	// RootDir is the base directory of the local backend.
	RootDir string `json:"root-dir" mapstructure:"root-dir"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend:        BackendLocal,
		OutputRootName: "Optical Character Recognition",
		DriveRPS:       8,
		DriveBurst:     10,
		Region:         "us-east-1",
		RootDir:        "./data",
	}
}

// MarshalJSON redacts secrets.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	out := struct {
		*plain
		ClientSecret string `json:"client-secret,omitempty"`
		SecretKey    string `json:"secret-key,omitempty"`
	}{plain: (*plain)(o)}
	if o.ClientSecret != "" {
		out.ClientSecret = redacted
	}
	if o.SecretKey != "" {
		out.SecretKey = redacted
	}
	return json.Marshal(out)
}

// AddFlags adds flags for blob options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "blob."
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Blob store backend (drive, s3, local).")
	fs.StringVar(&o.FolderID, p+"folder-id", o.FolderID, "Default input folder id or prefix.")
	fs.StringVar(&o.OutputRootName, p+"output-root-name", o.OutputRootName, "Folder created under the input folder for OCR JSON output.")
	fs.StringVar(&o.CredentialsFile, p+"credentials-file", o.CredentialsFile, "Google credentials JSON (service account or authorized user).")
	fs.StringVar(&o.TokenFile, p+"token-file", o.TokenFile, "OAuth token JSON holding a refresh token.")
	fs.StringVar(&o.ClientID, p+"client-id", o.ClientID, "OAuth client id used with --blob.token-file.")
	fs.StringVar(&o.ClientSecret, p+"client-secret", o.ClientSecret, "OAuth client secret (prefer GOOGLE_CLIENT_SECRET).")
	fs.Float64Var(&o.DriveRPS, p+"drive-rps", o.DriveRPS, "Sustained Drive API requests per second.")
	fs.IntVar(&o.DriveBurst, p+"drive-burst", o.DriveBurst, "Drive API request burst.")
	fs.StringVar(&o.Bucket, p+"bucket", o.Bucket, "S3 bucket name.")
	fs.StringVar(&o.Region, p+"region", o.Region, "S3 region.")
	fs.StringVar(&o.Endpoint, p+"endpoint", o.Endpoint, "S3-compatible endpoint URL.")
	fs.StringVar(&o.AccessKey, p+"access-key", o.AccessKey, "S3 access key, empty for the default credential chain.")
	fs.StringVar(&o.SecretKey, p+"secret-key", o.SecretKey, "S3 secret key (prefer AWS_SECRET_ACCESS_KEY).")
	fs.StringVar(&o.RootDir, p+"root-dir", o.RootDir, "Base directory of the local backend.")
}

// Complete fills secrets and credential paths from the environment.
func (o *Options) Complete() error {
	if o.CredentialsFile == "" {
		o.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if o.ClientSecret == "" {
		o.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if o.SecretKey == "" {
		o.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if o.AccessKey == "" {
		o.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	return nil
}

// Validate validates the blob options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendDrive:
		if o.CredentialsFile == "" && o.TokenFile == "" {
			errs = append(errs, fmt.Errorf("blob.credentials-file or blob.token-file is required for the drive backend"))
		}
		if o.TokenFile != "" && o.CredentialsFile == "" && (o.ClientID == "" || o.ClientSecret == "") {
			errs = append(errs, fmt.Errorf("blob.client-id and blob.client-secret are required with blob.token-file"))
		}
		if o.DriveRPS <= 0 || o.DriveBurst <= 0 {
			errs = append(errs, fmt.Errorf("blob.drive-rps and blob.drive-burst must be positive"))
		}
	case BackendS3:
		if o.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.bucket is required for the s3 backend"))
		}
	case BackendLocal:
		if o.RootDir == "" {
			errs = append(errs, fmt.Errorf("blob.root-dir is required for the local backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.backend must be drive, s3 or local, got %q", o.Backend))
	}
	if o.OutputRootName == "" {
		errs = append(errs, fmt.Errorf("blob.output-root-name cannot be empty"))
	}
	return errs
}
