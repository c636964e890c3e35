// Package app builds the cobra command of a service from its options.
//
// Settings resolve in this order, later sources winning: defaults, config
// file, DOCQA_* style environment variables, flags set on the command line.
// Flag names are config keys, so "--server.http.addr" is "server.http.addr"
// in YAML and SERVICE_SERVER_HTTP_ADDR in the environment.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"

	options "github.com/kart-io/docqa/pkg/options/app"
	"github.com/kart-io/docqa/pkg/utils/json"
)

const (
	flagConfig      = "config"
	flagPrintConfig = "print-config"
)

// RunFunc runs the service once options are loaded and valid.
type RunFunc func() error

// App couples a cobra command with a viper instance.
type App struct {
	name        string
	description string
	options     options.CliOptions
	runFunc     RunFunc

	silence   bool
	noVersion bool
	noConfig  bool

	cmd *cobra.Command
	v   *viper.Viper
}

// Option configures an App.
type Option func(*App)

func WithName(name string) Option             { return func(a *App) { a.name = name } }
func WithDescription(desc string) Option      { return func(a *App) { a.description = desc } }
func WithOptions(o options.CliOptions) Option { return func(a *App) { a.options = o } }
func WithRunFunc(run RunFunc) Option          { return func(a *App) { a.runFunc = run } }

// WithSilence stops cobra from printing errors; Run still reports them.
func WithSilence() Option { return func(a *App) { a.silence = true } }

// WithNoVersion drops the --version flag.
func WithNoVersion() Option { return func(a *App) { a.noVersion = true } }

// WithNoConfig skips config file and environment loading.
func WithNoConfig() Option { return func(a *App) { a.noConfig = true } }

// NewApp creates the application. The name defaults to the binary name.
func NewApp(opts ...Option) *App {
	a := &App{name: filepath.Base(os.Args[0]), v: viper.New()}
	for _, opt := range opts {
		opt(a)
	}

	a.cmd = &cobra.Command{
		Use:           a.name,
		Long:          a.description,
		RunE:          a.runCommand,
		SilenceUsage:  true,
		SilenceErrors: a.silence,
	}
	a.cmd.SetOut(os.Stdout)
	a.cmd.SetErr(os.Stderr)

	pf := a.cmd.PersistentFlags()
	if !a.noConfig {
		pf.StringP(flagConfig, "c", "", "Config file. Searched as <name>.yaml in ., ./configs, ~/.<name> and /etc/<name> when unset.")
	}
	if !a.noVersion {
		version.AddFlags(pf)
	}
	pf.Bool(flagPrintConfig, false, "Print the effective configuration with secrets redacted, then exit.")
	pf.BoolP("help", "h", false, "Help for "+a.name)

	if a.options != nil {
		fss := a.options.Flags()
		for _, name := range fss.Order {
			a.cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
		sectionedUsage(a.cmd, fss)
	}
	return a
}

// sectionedUsage prints option flags grouped by section.
func sectionedUsage(cmd *cobra.Command, fss cliflag.NamedFlagSets) {
	cmd.SetUsageFunc(func(cmd *cobra.Command) error {
		out := cmd.OutOrStderr()
		fmt.Fprintf(out, "Usage:\n  %s\n\nGlobal flags:\n%s\n", cmd.UseLine(), cmd.PersistentFlags().FlagUsages())
		cliflag.PrintSections(out, fss, 0)
		return nil
	})
	cmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", cmd.Long)
		_ = cmd.Usage()
	})
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}
	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if dump, _ := cmd.Flags().GetBool(flagPrintConfig); dump {
			out, err := json.MarshalIndent(a.options, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to print config: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// EnvPrefix is the upper-cased app name with dashes turned into underscores.
func (a *App) EnvPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(a.name, "-", "_"))
}

// loadConfig merges the config file and environment into the options, then
// re-applies explicitly set flags so they keep precedence.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.v
	if file, _ := cmd.Flags().GetString(flagConfig); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", filepath.Join(os.Getenv("HOME"), "."+a.name), "/etc/" + a.name} {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	expandEnvVars(v)

	v.SetEnvPrefix(a.EnvPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// Binding lets AutomaticEnv resolve keys the config file does not set.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, val := range changed {
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR} and $VAR in string values. References to
// unset variables are kept verbatim.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envRef.ReplaceAllStringFunc(s, func(ref string) string {
			m := envRef.FindStringSubmatch(ref)
			name := m[1] + m[2]
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return ref
		})
		if expanded != s {
			v.Set(key, expanded)
		}
	}
}

// Run executes the command and exits with status 1 on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
