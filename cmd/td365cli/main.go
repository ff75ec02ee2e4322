// td365cli is an example driver: it authenticates, subscribes to one
// market, and prints ticks until interrupted. It is not part of the
// library surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"td365/config"
	"td365/facade"
	"td365/logging"
	"td365/models"
	"td365/wsclient"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the non-secret config file")
	quoteID := flag.Int("quote", 0, "quote id to subscribe to after connecting")
	anonymous := flag.Bool("anonymous", false, "use the one-click demo account instead of TD365_USERNAME/PASSWORD")
	flag.Parse()

	log, err := logging.New(logging.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "td365cli:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := facade.New(facade.Options{
		Log:               log,
		ReconnectBackoff:  time.Duration(cfg.WS.ReconnectBackoff),
		KeepAliveInterval: time.Duration(cfg.RestAPI.KeepAliveInterval),
	})

	if *anonymous {
		err = client.ConnectAnonymous(ctx)
	} else {
		creds, credErr := config.LoadCredentials()
		if credErr != nil {
			log.WithError(credErr).Error("failed to load credentials")
			os.Exit(1)
		}
		err = client.Connect(ctx, creds.Username, creds.Password, creds.AccountID)
	}
	if err != nil {
		log.WithError(err).Error("failed to connect")
		os.Exit(1)
	}

	log.WithField("web_detail", client.WebDetail()).Info("connected")

	if *quoteID != 0 {
		if err := client.Subscribe(*quoteID); err != nil {
			log.WithError(err).Error("failed to subscribe")
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.RunUntilShutdown(ctx, facadeCallbacks(log))
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, closing connection")
	client.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("timed out waiting for event loop to drain")
	}
}

func facadeCallbacks(log *logrus.Logger) wsclient.Callbacks {
	return wsclient.Callbacks{
		OnTick: func(t models.Tick) {
			log.WithFields(logrus.Fields{"quote_id": t.QuoteID, "bid": t.Bid, "ask": t.Ask}).Info("tick")
		},
		OnAccountSummary: func(s models.AccountSummary) {
			log.WithField("balance", s.Balance).Info("account summary")
		},
		OnTradeEstablished: func(d models.TradeDetails) {
			log.WithField("position_id", d.PositionID).Info("trade established")
		},
		OnError: func(err error) {
			log.WithError(err).Warn("ws event error")
		},
	}
}
