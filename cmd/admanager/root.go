package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/isometry/admanager/internal/config"
	"github.com/isometry/admanager/internal/ldap"
	"github.com/isometry/admanager/internal/logging"
	"github.com/isometry/admanager/internal/service"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	cfgFile string
	flags   overrides

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	lines  *bufio.Reader

	// newClient builds the directory client; replaced in tests.
	newClient func(*ldap.ConnectionConfig, hclog.Logger) (ldap.Client, error)
	// readSecret prompts for a secret; replaced in tests.
	readSecret func(prompt string) (string, error)

	cfg     *config.Config
	logger  *logging.Logger
	session *service.Session
}

func newApp() *app {
	a := &app{
		in:        os.Stdin,
		out:       os.Stdout,
		errOut:    os.Stderr,
		newClient: ldap.NewClient,
	}
	a.readSecret = a.promptSecret
	return a
}

// overrides holds the connection flags. Only flags set on the command line
// replace configured values.
type overrides struct {
	url, domain, baseDN   string
	username, password    string
	kerberosRealm         string
	kerberosKeytab        string
	kerberosConfig        string
	kerberosCCache        string
	useTLS, skipTLSVerify bool
	caCertFile            string
	timeout               string
	maxRetries            int
	nameOrder             string
	logFile, logLevel     string
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admanager",
		Short: "Search, view and edit Active Directory users",
		Long: `admanager looks up Active Directory user accounts, edits their attributes,
creates new accounts and lists organizational units.

The directory target is given as ldap[s]://host[:port]/baseDN, or as a DNS
domain for SRV discovery. Settings come from --config, AD_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&a.flags.url, "url", "", "directory target, ldap[s]://host[:port]/baseDN")
	pf.StringVar(&a.flags.domain, "domain", "", "AD domain for DNS SRV discovery")
	pf.StringVar(&a.flags.baseDN, "base-dn", "", "base DN for searches")
	pf.StringVarP(&a.flags.username, "username", "u", "", "bind user (DN, UPN or DOMAIN\\user)")
	pf.StringVarP(&a.flags.password, "password", "p", "", "bind password (prompted when omitted)")
	pf.StringVar(&a.flags.kerberosRealm, "kerberos-realm", "", "Kerberos realm; enables GSSAPI bind")
	pf.StringVar(&a.flags.kerberosKeytab, "kerberos-keytab", "", "Kerberos keytab file")
	pf.StringVar(&a.flags.kerberosConfig, "kerberos-config", "", "krb5.conf path (default /etc/krb5.conf, else DNS KDC discovery)")
	pf.StringVar(&a.flags.kerberosCCache, "kerberos-ccache", "", "Kerberos credential cache")
	pf.BoolVar(&a.flags.useTLS, "use-tls", true, "upgrade ldap:// connections with StartTLS")
	pf.BoolVar(&a.flags.skipTLSVerify, "skip-tls-verify", false, "do not verify the server certificate")
	pf.StringVar(&a.flags.caCertFile, "ca-cert", "", "CA certificate bundle (PEM)")
	pf.StringVar(&a.flags.timeout, "timeout", "", "connect and request timeout, e.g. 30s")
	pf.IntVar(&a.flags.maxRetries, "max-retries", 0, "retries for transient failures")
	pf.StringVar(&a.flags.nameOrder, "name-order", "", "display name order: given_first or surname_first")
	pf.StringVar(&a.flags.logFile, "log-file", "", "append-only log file")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	cmd.AddCommand(
		newPingCmd(a),
		newUserCmd(a),
		newOUCmd(a),
	)

	return cmd
}

// setup loads configuration and opens the logger and session.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if !needsSession(cmd) {
		return nil
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if err := a.applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		File:    cfg.LogFile,
		Level:   cfg.LogLevel,
		Console: a.errOut,
	})
	if err != nil {
		return err
	}
	a.logger = logger

	if cfg.NeedsPassword() {
		pw, err := a.readSecret(fmt.Sprintf("Password for %s: ", cfg.Username))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		cfg.Password = pw
	}

	connCfg, err := cfg.ToConnectionConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := a.newClient(connCfg, logger.Named("ldap"))
	if err != nil {
		return err
	}

	a.session = service.NewSession(client, connCfg.BaseDN, cfg.NameOrder(), logger)
	a.session.SetTimeout(connCfg.Timeout)
	logger.Info("Session started", "command", cmd.CommandPath(), "base_dn", connCfg.BaseDN)
	return nil
}

// needsSession is false for cobra's built-in help and completion commands.
func needsSession(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// applyFlags copies the persistent flags given on the command line into cfg.
// It reads the root flag set so a subcommand flag can never shadow them.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Root().PersistentFlags()
	set := func(name string, dst *string, v string) {
		if f.Changed(name) {
			*dst = v
		}
	}

	set("url", &cfg.URL, a.flags.url)
	set("domain", &cfg.Domain, a.flags.domain)
	set("base-dn", &cfg.BaseDN, a.flags.baseDN)
	set("username", &cfg.Username, a.flags.username)
	set("password", &cfg.Password, a.flags.password)
	set("kerberos-realm", &cfg.Kerberos.Realm, a.flags.kerberosRealm)
	set("kerberos-keytab", &cfg.Kerberos.Keytab, a.flags.kerberosKeytab)
	set("kerberos-config", &cfg.Kerberos.Config, a.flags.kerberosConfig)
	set("kerberos-ccache", &cfg.Kerberos.CCache, a.flags.kerberosCCache)
	set("ca-cert", &cfg.TLS.CACertFile, a.flags.caCertFile)
	set("name-order", &cfg.DisplayNameOrder, a.flags.nameOrder)
	set("log-file", &cfg.LogFile, a.flags.logFile)
	set("log-level", &cfg.LogLevel, a.flags.logLevel)

	if f.Changed("url") && !f.Changed("domain") {
		cfg.Domain = ""
	}
	if f.Changed("use-tls") {
		cfg.TLS.UseTLS = a.flags.useTLS
	}
	if f.Changed("skip-tls-verify") {
		cfg.TLS.SkipVerify = a.flags.skipTLSVerify
	}
	if f.Changed("max-retries") {
		cfg.MaxRetries = a.flags.maxRetries
	}
	if f.Changed("timeout") {
		d, err := config.ParseTimeout(a.flags.timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	return nil
}

func (a *app) teardown() error {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close())
		a.session = nil
	}
	if a.logger != nil {
		a.logger.Info("Session ended")
		errs = append(errs, a.logger.Close())
		a.logger = nil
	}
	return errors.Join(errs...)
}
