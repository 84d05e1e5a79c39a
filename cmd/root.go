package cmd

import (
	"crypto/tls"
	"fmt"
	log2 "log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/multi"
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/cloudpage/drive/config"
	"github.com/cloudpage/drive/loggers/cli"
	"github.com/cloudpage/drive/router"
	"github.com/cloudpage/drive/system"
)

var (
	configPath      = config.DefaultLocation
	debug           = false
	useAutomaticTls = false
	tlsHostname     = ""
	showVersion     = false
)

var rootCommand = &cobra.Command{
	Use:   "drive",
	Short: "Serves the personal file drives of cloudpage users",
	PreRun: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(system.Version)
			os.Exit(0)
		}
		if useAutomaticTls && len(tlsHostname) == 0 {
			fmt.Println("A TLS hostname must be provided when running drive with automatic TLS, e.g.:\n\n    ./drive --auto-tls --tls-hostname my.example.com")
			os.Exit(1)
		}
		initConfig()
		initLogging()
	},
	Run: rootCmdRun,
}

// Execute calls cobra to handle cli commands
func Execute() error {
	return rootCommand.Execute()
}

func init() {
	rootCommand.PersistentFlags().BoolVar(&showVersion, "version", false, "show the version and exit")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", config.DefaultLocation, "set the location for the configuration file")
	rootCommand.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run drive in debug mode")
	rootCommand.PersistentFlags().BoolVar(&useAutomaticTls, "auto-tls", false, "pass in order to have drive generate and manage its own SSL certificates using Let's Encrypt")
	rootCommand.PersistentFlags().StringVar(&tlsHostname, "tls-hostname", "", "required with --auto-tls, the FQDN for the generated SSL certificate")

	rootCommand.AddCommand(configureCmd)
}

func rootCmdRun(cmd *cobra.Command, _ []string) {
	printLogo()
	log.Debug("running in debug mode")
	log.WithField("config_file", configPath).Info("loading configuration from file")

	c := config.Get()
	if err := c.System.ConfigureDirectories(); err != nil {
		log.WithField("error", err).Fatal("failed to configure system directories for drive")
		return
	}

	log.WithFields(log.Fields{
		"use_ssl":      c.Api.Ssl.Enabled,
		"use_auto_tls": useAutomaticTls && len(tlsHostname) > 0,
		"host_address": c.Api.Host,
		"host_port":    c.Api.Port,
		"data":         c.System.Data,
		"upload_limit": system.FormatBytes(c.Api.UploadLimit * 1024 * 1024),
	}).Info("configuring internal webserver")

	s := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", c.Api.Host, c.Api.Port),
		Handler: router.Configure(),
		TLSConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
			// @see https://blog.cloudflare.com/exposing-go-on-the-internet
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			},
			PreferServerCipherSuites: true,
			MinVersion:               tls.VersionTLS12,
			MaxVersion:               tls.VersionTLS13,
			CurvePreferences:         []tls.CurveID{tls.X25519, tls.CurveP256},
		},
	}

	// Check if the server should run with TLS but using autocert.
	if useAutomaticTls && len(tlsHostname) > 0 {
		m := autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(filepath.Join(c.System.RootDirectory, "/.tls-cache")),
			HostPolicy: autocert.HostWhitelist(tlsHostname),
		}

		log.WithField("hostname", tlsHostname).
			Info("webserver is now listening with auto-TLS enabled; certificates will be automatically generated by Let's Encrypt")

		// Hook autocert into the main http server.
		s.TLSConfig.GetCertificate = m.GetCertificate
		s.TLSConfig.NextProtos = append(s.TLSConfig.NextProtos, acme.ALPNProto) // enable tls-alpn ACME challenges

		// Start the autocert server.
		go func() {
			if err := http.ListenAndServe(":http", m.HTTPHandler(nil)); err != nil {
				log.WithError(err).Error("failed to serve autocert http server")
			}
		}()

		// Start the main http server with TLS using autocert.
		if err := s.ListenAndServeTLS("", ""); err != nil {
			log.WithFields(log.Fields{"auto_tls": true, "tls_hostname": tlsHostname, "error": err}).
				Fatal("failed to configure HTTP server using auto-tls")
		}
		return
	}

	// Check if main http server should run with TLS.
	if c.Api.Ssl.Enabled {
		if err := s.ListenAndServeTLS(strings.ToLower(c.Api.Ssl.CertificateFile), strings.ToLower(c.Api.Ssl.KeyFile)); err != nil {
			log.WithFields(log.Fields{"auto_tls": false, "error": err}).Fatal("failed to configure HTTPS server")
		}
		return
	}

	// Run the main http server without TLS.
	s.TLSConfig = nil
	if err := s.ListenAndServe(); err != nil {
		log.WithField("error", err).Fatal("failed to configure HTTP server")
	}
}

// Reads the configuration from the disk and then sets up the global singleton
// with all the configuration values.
func initConfig() {
	if !filepath.IsAbs(configPath) {
		d, err := filepath.Abs(configPath)
		if err != nil {
			log2.Fatalf("cmd/root: failed to get path to config file: %s", err)
		}
		configPath = d
	}
	if configPath == config.DefaultLocation {
		if err := RelocateConfiguration(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				exitWithConfigurationNotice()
			}
			log2.Fatalf("cmd/root: error while relocating configuration: %s", err)
		}
	}
	err := config.FromFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			exitWithConfigurationNotice()
		}
		log2.Fatalf("cmd/root: error while reading configuration file: %s", err)
	}
	if debug && !config.Get().Debug {
		config.SetDebugViaFlag(debug)
	}
}

// Configures the global logger for the application so that we can call it from
// any location in the code without having to pass around a logger instance.
func initLogging() {
	dir := config.Get().System.LogDirectory
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log2.Fatalf("cmd/root: failed to create install directory path: %s", err)
	}
	p := filepath.Join(dir, "/drive.log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		log2.Fatalf("cmd/root: failed to create drive log: %s", err)
	}
	log.SetLevel(log.InfoLevel)
	if config.Get().Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetHandler(multi.New(cli.Default, cli.New(w.File, false)))
	log.WithField("path", p).Info("writing log files to disk")
}

// Prints the drive logo, nothing special here!
func printLogo() {
	fmt.Printf(colorstring.Color(`
       __     _
  ____/ /____(_)   _____
 / __  / ___/ / | / / _ \
/ /_/ / /  / /| |/ /  __/
\__,_/_/  /_/ |___/\___/  [blue][bold]cloudpage[reset] [bold]v%s[reset]
%s`), system.Version, "\n")
}

func exitWithConfigurationNotice() {
	fmt.Print(colorstring.Color(`
[_red_][white][bold]Error: Configuration File Not Found[reset]

Drive was not able to locate your configuration file, and therefore is not
able to complete its boot process. Run "drive configure" to create one.

Please ensure you have created your configuration file in the default
location, or have provided the --config flag to use a custom location.

Default Location: /etc/cloudpage/drive.yml

`))
	os.Exit(1)
}
