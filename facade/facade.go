// Package facade presents the single synchronous entry point a consumer
// drives: authenticate, connect the WS session, discover markets, trade,
// and receive ticks either by callback or by polling.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"td365/authenticator"
	"td365/models"
	"td365/restapi"
	"td365/wsclient"
)

// Options configures timing knobs that would otherwise be hardcoded
// defaults; the zero value is fine for casual use.
type Options struct {
	ReconnectBackoff  time.Duration
	KeepAliveInterval time.Duration
	Log               *logrus.Logger
}

// Client orchestrates the REST session and the WS client behind one
// connect/discover/trade/subscribe surface.
type Client struct {
	log  *logrus.Logger
	opts Options

	rest      *restapi.Client
	ws        *wsclient.Client
	webDetail models.WebDetail
}

// New returns an unconnected Client. Call Connect or ConnectAnonymous
// before any other method.
func New(opts Options) *Client {
	return &Client{log: opts.Log, opts: opts}
}

// Connect performs the full password-grant handshake: Auth0 login, portal
// account lookup, the landing-page walk, and the WS authentication
// sequence. It blocks until the WS session reaches Ready.
func (c *Client) Connect(ctx context.Context, username, password, accountID string) error {
	detail, err := authenticator.Authenticate(ctx, username, password, accountID, c.log)
	if err != nil {
		return fmt.Errorf("facade: connect: %w", err)
	}
	return c.connectWebDetail(ctx, detail)
}

// ConnectAnonymous performs the fixed one-click demo login, skipping the
// Auth0/portal round trip.
func (c *Client) ConnectAnonymous(ctx context.Context) error {
	return c.connectWebDetail(ctx, authenticator.Anonymous())
}

func (c *Client) connectWebDetail(ctx context.Context, detail models.WebDetail) error {
	c.webDetail = detail

	rest, authInfo, err := restapi.Connect(ctx, detail.PlatformURL, c.log)
	if err != nil {
		return fmt.Errorf("facade: connect: %w", err)
	}
	c.rest = rest
	c.rest.StartKeepAlive(ctx, c.opts.KeepAliveInterval)

	c.ws = wsclient.New(c.log)
	if c.opts.ReconnectBackoff > 0 {
		c.ws.SetBackoff(c.opts.ReconnectBackoff)
	}

	if err := c.ws.Start(ctx, detail.SockHost, authInfo.LoginID, authInfo.Token); err != nil {
		c.rest.StopKeepAlive()
		return fmt.Errorf("facade: connect: %w", err)
	}
	return nil
}

// Close tears down the WS session and the REST keep-alive loop. Safe to
// call once after a successful Connect/ConnectAnonymous.
func (c *Client) Close() {
	if c.ws != nil {
		c.ws.Close()
	}
	if c.rest != nil {
		c.rest.StopKeepAlive()
	}
}

// GetMarketSuperGroup lists the top-level discovery groups.
func (c *Client) GetMarketSuperGroup(ctx context.Context) ([]models.MarketGroup, error) {
	return c.rest.GetMarketSuperGroup(ctx)
}

// GetMarketGroup lists the groups under superGroupID.
func (c *Client) GetMarketGroup(ctx context.Context, superGroupID int) ([]models.MarketGroup, error) {
	return c.rest.GetMarketGroup(ctx, superGroupID)
}

// GetMarketQuote lists the tradable markets in groupID.
func (c *Client) GetMarketQuote(ctx context.Context, groupID int) ([]models.Market, error) {
	return c.rest.GetMarketQuote(ctx, groupID)
}

// GetMarketDetails fetches per-market configuration.
func (c *Client) GetMarketDetails(ctx context.Context, marketID int) (models.MarketDetailsResponse, error) {
	return c.rest.GetMarketDetails(ctx, marketID)
}

// Backfill fetches count minute candles for marketID.
func (c *Client) Backfill(ctx context.Context, marketID, count int) ([]models.Candle, error) {
	return restapi.Backfill(ctx, marketID, count)
}

// Subscribe posts a fire-and-forget subscribe intent to the WS client.
func (c *Client) Subscribe(quoteID int) error { return c.ws.Subscribe(quoteID) }

// Unsubscribe posts a fire-and-forget unsubscribe intent to the WS client.
func (c *Client) Unsubscribe(quoteID int) error { return c.ws.Unsubscribe(quoteID) }

// Trade performs details -> simulate -> place synchronously and returns
// the venue's response to the live RequestTrade call.
func (c *Client) Trade(ctx context.Context, req models.TradeRequest) (models.TradeResponse, error) {
	if _, err := c.rest.GetMarketDetails(ctx, req.MarketID); err != nil {
		return models.TradeResponse{}, fmt.Errorf("facade: trade: details: %w", err)
	}
	if err := c.rest.SimTrade(ctx, req); err != nil {
		return models.TradeResponse{}, fmt.Errorf("facade: trade: simulate: %w", err)
	}
	resp, err := c.rest.Trade(ctx, req)
	if err != nil {
		return models.TradeResponse{}, fmt.Errorf("facade: trade: place: %w", err)
	}
	return resp, nil
}

// Wait returns the next decoded WS event (poll model). See wsclient.Wait.
func (c *Client) Wait(timeout time.Duration) (models.Event, error) {
	return c.ws.Wait(timeout)
}

// RunUntilShutdown dispatches every decoded WS event to cb until the
// connection closes (push model). See wsclient.RunUntilShutdown.
func (c *Client) RunUntilShutdown(ctx context.Context, cb wsclient.Callbacks) error {
	for {
		ev, _ := c.ws.Wait(0)
		switch ev.Kind {
		case models.EventTick:
			if cb.OnTick != nil {
				cb.OnTick(ev.Tick)
			}
		case models.EventAccountSummary:
			if cb.OnAccountSummary != nil {
				cb.OnAccountSummary(ev.AccountSummary)
			}
		case models.EventAccountDetails:
			if cb.OnAccountDetails != nil {
				cb.OnAccountDetails(ev.AccountDetails)
			}
		case models.EventTradeEstablished:
			if cb.OnTradeEstablished != nil {
				cb.OnTradeEstablished(ev.TradeEstablished)
			}
		case models.EventSubscribeAck:
			if cb.OnSubscribeAck != nil {
				cb.OnSubscribeAck(ev.SubscribeAck)
			}
		case models.EventError:
			if cb.OnError != nil {
				cb.OnError(ev.Err)
			}
		case models.EventConnectionClosed:
			return nil
		}
	}
}

// WebDetail returns the account metadata resolved during Connect.
func (c *Client) WebDetail() models.WebDetail { return c.webDetail }
