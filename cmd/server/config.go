package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"

	vc "github.com/linnemanlabs/switchboard/internal/cfg"
)

const envPrefix = "SWITCHBOARD_"

// config gathers the flag-backed settings of every package the server wires.
type config struct {
	app    vc.Config
	http   httpserver.Config
	httpmw httpmw.Config
	log    log.Config
	ops    opshttp.Config
	prof   prof.Config
	trace  otelx.Config

	showVersion bool
}

func (c *config) registerFlags(fs *flag.FlagSet) {
	c.app.RegisterFlags(fs)
	c.http.RegisterFlags(fs)
	c.httpmw.RegisterFlags(fs)
	c.log.RegisterFlags(fs)
	c.ops.RegisterFlags(fs)
	c.prof.RegisterFlags(fs)
	c.trace.RegisterFlags(fs)
	fs.BoolVar(&c.showVersion, "V", false, "Print version+build information and exit")
}

// parseConfig reads flags from args, then fills unset flags from
// SWITCHBOARD_* environment variables. Command line values win.
func parseConfig(fs *flag.FlagSet, args []string, stderr io.Writer) (*config, error) {
	c := &config{}
	c.registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if c.showVersion {
		return c, nil
	}

	cfg.FillFromEnv(fs, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(stderr, format+"\n", args...)
	})
	return c, nil
}

func (c *config) validate() error {
	if err := errors.Join(
		c.app.Validate(),
		c.http.Validate(),
		c.httpmw.Validate(),
		c.log.Validate(),
		c.ops.Validate(),
		c.prof.Validate(),
		c.trace.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// the API and ops listeners bind separately
	if c.app.APIPort == c.ops.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", c.app.APIPort)
	}
	return nil
}
