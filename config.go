package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	abandonedTimeout time.Duration
	bind             string
	emptyTimeout     time.Duration
	introDelay       time.Duration
	maxIdle          time.Duration
	pinDigits        int
	port             int
	prefix           string
	profile          bool
	quizDir          string
	rateBurst        int
	rateLimit        float64
	sweepInterval    time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.pinDigits < 6 || c.pinDigits > 8 {
		return fmt.Errorf("invalid pin length (must be between 6-8 inclusive): %d", c.pinDigits)
	}
	if c.sweepInterval <= 0 {
		return fmt.Errorf("invalid sweep interval (must be positive): %s", c.sweepInterval)
	}
	if c.emptyTimeout <= 0 || c.abandonedTimeout <= 0 || c.maxIdle <= 0 {
		return errors.New("--empty-timeout, --abandoned-timeout and --max-idle must all be positive")
	}
	if c.introDelay < 0 {
		return fmt.Errorf("invalid intro delay (must not be negative): %s", c.introDelay)
	}
	if c.rateLimit <= 0 || c.rateBurst < 1 {
		return errors.New("--rate-limit must be positive and --rate-burst at least 1")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZLY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizly",
		Short:         "Live multiplayer quiz server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.DurationVar(&cfg.abandonedTimeout, "abandoned-timeout", 2*time.Minute, "time before sessions with every player offline are ended (env: QUIZLY_ABANDONED_TIMEOUT)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZLY_BIND)")
	fs.DurationVar(&cfg.emptyTimeout, "empty-timeout", 10*time.Minute, "time before sessions without human players are ended (env: QUIZLY_EMPTY_TIMEOUT)")
	fs.DurationVar(&cfg.introDelay, "intro-delay", 5*time.Second, "time questions are shown before answers open (env: QUIZLY_INTRO_DELAY)")
	fs.DurationVar(&cfg.maxIdle, "max-idle", 30*time.Minute, "time before any idle session is ended (env: QUIZLY_MAX_IDLE)")
	fs.IntVar(&cfg.pinDigits, "pin-digits", 6, "length of generated session pins, 6-8 (env: QUIZLY_PIN_DIGITS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZLY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZLY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZLY_PROFILE)")
	fs.StringVarP(&cfg.quizDir, "quiz-dir", "q", "", "directory of yaml/json quiz files to serve (env: QUIZLY_QUIZ_DIR)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 10, "messages a connection may send in a burst (env: QUIZLY_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 5, "sustained messages per second per connection (env: QUIZLY_RATE_LIMIT)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", 2*time.Minute, "time between idle session sweeps (env: QUIZLY_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZLY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZLY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZLY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZLY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizly v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
