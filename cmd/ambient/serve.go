package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ambient/cmd/ambient/console"
	"github.com/mklimuk/ambient/meter"
	"github.com/mklimuk/ambient/store"
)

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "serve the recording API and lux dashboard over HTTP",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address",
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "sqlite file the readings land in",
		},
		&cli.BoolFlag{
			Name:  "ssl",
			Usage: "serve over TLS with a self-signed certificate",
		},
		&cli.StringFlag{
			Name:  "cert",
			Usage: "certificate file for --ssl",
			Value: "cert.pem",
		},
		&cli.StringFlag{
			Name:  "key",
			Usage: "key file for --ssl",
			Value: "key.pem",
		},
	}, sessionFlags...),
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = console.SetVerbose(ctx, c.Bool("verbose"))

		config, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		addr := config.Serve.Addr
		if c.IsSet("addr") {
			addr = c.String("addr")
		}
		ssl := config.Serve.SSL
		if c.IsSet("ssl") {
			ssl = c.Bool("ssl")
		}
		dbPath := config.Store.Path
		if c.IsSet("db") {
			dbPath = c.String("db")
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return console.Exit(1, "store error: %s", console.Red(err))
		}
		defer func() {
			_ = st.Close()
		}()
		session, err := openSession(ctx, c, config)
		if err != nil {
			return console.Exit(1, "session error: %s", console.Red(err))
		}

		m := meter.New(session, st)
		server := &http.Server{Addr: addr, Handler: m.Routes()}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		if ssl {
			cert, key := c.String("cert"), c.String("key")
			if err = meter.EnsureCertificate(cert, key); err != nil {
				return console.Exit(1, "certificate error: %s", console.Red(err))
			}
			console.PInfof(console.PictoCert, "serving HTTPS on %s", console.White(addr))
			err = server.ListenAndServeTLS(cert, key)
		} else {
			console.PInfof(console.PictoChart, "serving HTTP on %s", console.White(addr))
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return console.Exit(1, "server error: %s", console.Red(err))
		}
		if err = m.Stop(); err != nil && !errors.Is(err, meter.ErrNoJob) {
			slog.Warn("recording job did not stop cleanly", "error", err)
		}
		return nil
	},
}
