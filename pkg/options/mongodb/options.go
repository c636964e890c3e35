// Package mongodb provides MongoDB options for the ingestion ledger.
package mongodb

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

const redacted = "[REDACTED]"

// Options defines the MongoDB connection used by the ledger.
type Options struct {
	// URI takes precedence over the discrete connection fields.
	URI        string `json:"uri" mapstructure:"uri"`
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password,omitempty" mapstructure:"password"`
	Database   string `json:"database" mapstructure:"database"`
	AuthSource string `json:"auth-source" mapstructure:"auth-source"`
	ReplicaSet string `json:"replica-set" mapstructure:"replica-set"`
	Direct     bool   `json:"direct" mapstructure:"direct"`

	MaxPoolSize            uint64        `json:"max-pool-size" mapstructure:"max-pool-size"`
	ConnectTimeout         time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ServerSelectionTimeout time.Duration `json:"server-selection-timeout" mapstructure:"server-selection-timeout"`
}

// NewOptions creates Options with defaults for a local single-node server.
func NewOptions() *Options {
	return &Options{
		Host:                   "127.0.0.1",
		Port:                   27017,
		Database:               "docqa",
		AuthSource:             "admin",
		MaxPoolSize:            50,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 15 * time.Second,
	}
}

// MarshalJSON redacts the password and any credentials embedded in URI.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	c := plain(*o)
	if c.Password != "" {
		c.Password = redacted
	}
	if u, err := url.Parse(c.URI); err == nil && u.User != nil {
		c.URI = u.Redacted()
	}
	return json.Marshal(c)
}

// Complete reads credentials from MONGODB_URI and MONGODB_PASSWORD when unset.
func (o *Options) Complete() error {
	if o.URI == "" {
		o.URI = os.Getenv("MONGODB_URI")
	}
	if o.Password == "" {
		o.Password = os.Getenv("MONGODB_PASSWORD")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.URI == "" {
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("mongodb host is required when uri is not provided"))
		}
		if o.Port <= 0 || o.Port > 65535 {
			errs = append(errs, fmt.Errorf("mongodb port must be between 1 and 65535"))
		}
	}
	if o.Database == "" {
		errs = append(errs, fmt.Errorf("mongodb database is required"))
	}
	return errs
}

// AddFlags adds flags for MongoDB options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "mongodb."
	fs.StringVar(&o.URI, p+"uri", o.URI, "MongoDB connection URI; overrides host, port and credentials.")
	fs.StringVar(&o.Host, p+"host", o.Host, "MongoDB host.")
	fs.IntVar(&o.Port, p+"port", o.Port, "MongoDB port.")
	fs.StringVar(&o.Username, p+"username", o.Username, "MongoDB username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "MongoDB password. Prefer MONGODB_PASSWORD.")
	fs.StringVar(&o.Database, p+"database", o.Database, "Database holding the ocr_jobs and ocr_docs collections.")
	fs.StringVar(&o.AuthSource, p+"auth-source", o.AuthSource, "Authentication database.")
	fs.StringVar(&o.ReplicaSet, p+"replica-set", o.ReplicaSet, "Replica set name.")
	fs.BoolVar(&o.Direct, p+"direct", o.Direct, "Connect directly to the host instead of discovering the topology.")
	fs.Uint64Var(&o.MaxPoolSize, p+"max-pool-size", o.MaxPoolSize, "Maximum connections in the pool.")
	fs.DurationVar(&o.ConnectTimeout, p+"connect-timeout", o.ConnectTimeout, "Connection handshake timeout.")
	fs.DurationVar(&o.ServerSelectionTimeout, p+"server-selection-timeout", o.ServerSelectionTimeout, "Timeout for selecting a server for an operation.")
}

// ConnectionURI returns URI when set, otherwise a mongodb:// URI built from
// the discrete fields.
func (o *Options) ConnectionURI() string {
	if o.URI != "" {
		return o.URI
	}

	u := url.URL{
		Scheme: "mongodb",
		Host:   o.Host + ":" + strconv.Itoa(o.Port),
		Path:   "/" + o.Database,
	}
	if o.Username != "" {
		if o.Password != "" {
			u.User = url.UserPassword(o.Username, o.Password)
		} else {
			u.User = url.User(o.Username)
		}
	}

	q := url.Values{}
	if o.AuthSource != "" && o.AuthSource != "admin" {
		q.Set("authSource", o.AuthSource)
	}
	if o.ReplicaSet != "" {
		q.Set("replicaSet", o.ReplicaSet)
	}
	if o.Direct {
		q.Set("directConnection", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
