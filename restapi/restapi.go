package restapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"td365/codec"
	"td365/enum"
	"td365/httpclient"
	"td365/models"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxRedirectDepth = 4
const chartsHost = "charts.finsatechnology.com"

// MaxRedirectDepthError reports that Connect's landing-page walk followed
// more than maxRedirectDepth 302s without reaching a 200.
type MaxRedirectDepthError struct {
	Target string
}

func (e *MaxRedirectDepthError) Error() string {
	return fmt.Sprintf("restapi: max redirect depth reached: %s", e.Target)
}

// ExtractError reports that a required value was not found: ots in the
// landing URL's query, hfLoginID/hfAccountID in the landing page, or the
// "d" key of an API response.
type ExtractError struct {
	Field string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("restapi: could not extract %s from document", e.Field)
}

// HTTPStatusError reports an unexpected status code from an API call.
type HTTPStatusError struct {
	Target string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("restapi: unexpected response from %s: status=%d", e.Target, e.Status)
}

// Client drives the venue's UTSAPI.asmx surface plus the landing-page walk
// that establishes a session.
type Client struct {
	http                *httpclient.Client
	scheme              string
	host                string
	accountID           string
	getMarketDetailsURL string

	log *logrus.Logger

	keepAliveStop chan struct{}
}

// Connect follows platformURL's redirects (depth <= 4), extracts the ots
// session cookie name and hfLoginID/hfAccountID hidden fields from the
// final landing page, then sets Origin/Referer/Content-Type/X-Requested-With
// as defaults for every subsequent call on this client.
func Connect(ctx context.Context, platformURL string, log *logrus.Logger) (*Client, models.AuthInfo, error) {
	u, err := url.Parse(platformURL)
	if err != nil {
		return nil, models.AuthInfo{}, err
	}

	httpc, err := httpclient.New(u.Scheme+"://"+u.Host, "")
	if err != nil {
		return nil, models.AuthInfo{}, err
	}

	c := &Client{http: httpc, scheme: u.Scheme, host: u.Host, log: log}

	ots, loginID, err := c.openClient(ctx, u.RequestURI(), 0)
	if err != nil {
		return nil, models.AuthInfo{}, err
	}

	token := httpc.Cookie(ots)

	referer := fmt.Sprintf("%s://%s/Advanced.aspx?ots=%s", c.scheme, c.host, ots)
	origin := fmt.Sprintf("%s://%s", c.scheme, c.host)

	httpc.SetDefaultHeader("Origin", origin)
	httpc.SetDefaultHeader("Referer", referer)
	httpc.SetDefaultHeader("Content-Type", "application/json; charset=utf-8")
	httpc.SetDefaultHeader("X-Requested-With", "XMLHttpRequest")

	return c, models.AuthInfo{Token: token.Value, LoginID: loginID}, nil
}

func (c *Client) openClient(ctx context.Context, target string, depth int) (ots, loginID string, err error) {
	for depth <= maxRedirectDepth {
		resp, err := c.http.Do(ctx, http.MethodGet, target, nil, "")
		if err != nil {
			return "", "", err
		}

		if resp.StatusCode == http.StatusOK {
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", "", err
			}

			ots, err := extractOTS(target)
			if err != nil {
				return "", "", err
			}
			loginID, err := extractHiddenField(string(body), "hfLoginID")
			if err != nil {
				return "", "", err
			}
			accountID, err := extractHiddenField(string(body), "hfAccountID")
			if err != nil {
				return "", "", err
			}
			c.accountID = accountID
			c.getMarketDetailsURL = fmt.Sprintf("/UTSAPI.asmx/GetMarketDetails?AccountID=%s", accountID)
			return ots, loginID, nil
		}

		if resp.StatusCode != http.StatusFound {
			resp.Body.Close()
			return "", "", &HTTPStatusError{Target: target, Status: resp.StatusCode}
		}

		location := resp.Header.Get("Location")
		resp.Body.Close()
		target = location
		depth++
	}
	return "", "", &MaxRedirectDepthError{Target: target}
}

func extractOTS(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	ots := u.Query().Get("ots")
	if ots == "" {
		return "", &ExtractError{Field: "ots"}
	}
	return ots, nil
}

func extractHiddenField(body, name string) (string, error) {
	key := fmt.Sprintf(`id="%s" value="`, name)
	pos := strings.Index(body, key)
	if pos < 0 {
		return "", &ExtractError{Field: name}
	}
	pos += len(key)
	end := strings.IndexByte(body[pos:], '"')
	if end < 0 {
		return "", &ExtractError{Field: name}
	}
	return body[pos : pos+end], nil
}

func postJSON(ctx context.Context, httpc *httpclient.Client, target string, body any) (json jsoniter.RawMessage, err error) {
	var bodyStr string
	if body != nil {
		b, err := jsonCodec.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyStr = string(b)
	}

	resp, err := httpc.Do(ctx, http.MethodPost, target, nil, bodyStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Target: target, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		D jsoniter.RawMessage `json:"d"`
	}
	if err := jsonCodec.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if envelope.D == nil {
		return nil, &ExtractError{Field: "d"}
	}
	return envelope.D, nil
}

// GetMarketSuperGroup lists the top-level discovery groups.
func (c *Client) GetMarketSuperGroup(ctx context.Context) ([]models.MarketGroup, error) {
	d, err := postJSON(ctx, c.http, "/UTSAPI.asmx/GetMarketSuperGroup", struct{}{})
	if err != nil {
		return nil, err
	}
	var groups []models.MarketGroup
	return groups, jsonCodec.Unmarshal(d, &groups)
}

// GetMarketGroup lists the groups under superGroupID.
func (c *Client) GetMarketGroup(ctx context.Context, superGroupID int) ([]models.MarketGroup, error) {
	d, err := postJSON(ctx, c.http, "/UTSAPI.asmx/GetMarketGroup", map[string]int{"superGroupId": superGroupID})
	if err != nil {
		return nil, err
	}
	var groups []models.MarketGroup
	return groups, jsonCodec.Unmarshal(d, &groups)
}

// GetMarketQuote lists the tradable markets in groupID.
func (c *Client) GetMarketQuote(ctx context.Context, groupID int) ([]models.Market, error) {
	body := map[string]any{
		"groupID":   groupID,
		"keyword":   "",
		"popular":   false,
		"portfolio": false,
		"search":    false,
	}
	d, err := postJSON(ctx, c.http, "/UTSAPI.asmx/GetMarketQuote", body)
	if err != nil {
		return nil, err
	}
	var markets []models.Market
	return markets, jsonCodec.Unmarshal(d, &markets)
}

// GetMarketDetails fetches per-market configuration (stake/limit/stop
// bounds). Requires a prior successful Connect.
func (c *Client) GetMarketDetails(ctx context.Context, marketID int) (models.MarketDetailsResponse, error) {
	d, err := postJSON(ctx, c.http, c.getMarketDetailsURL, map[string]int{"marketID": marketID})
	if err != nil {
		return models.MarketDetailsResponse{}, err
	}
	var out models.MarketDetailsResponse
	return out, jsonCodec.Unmarshal(d, &out)
}

// Backfill fetches count minute candles for marketID from the chart host.
func Backfill(ctx context.Context, marketID, count int) ([]models.Candle, error) {
	chartClient, err := httpclient.New(chartsHost, "")
	if err != nil {
		return nil, err
	}

	target := fmt.Sprintf("/data/minute/%d/mid?l=%d", marketID, count)
	resp, err := chartClient.Do(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Target: target, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []string `json:"data"`
	}
	if err := jsonCodec.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, len(parsed.Data))
	for i, line := range parsed.Data {
		candle, err := codec.ParseCandle(line)
		if err != nil {
			return nil, err
		}
		candles[i] = candle
	}
	return candles, nil
}

func tradeRequestBody(req models.TradeRequest) map[string]any {
	priceFloat, _ := req.Price.Float64()
	return map[string]any{
		"marketID":         req.MarketID,
		"quoteID":          req.QuoteID,
		"price":            priceFloat,
		"stake":            req.Stake.String(),
		"tradeType":        1,
		"tradeMode":        req.Dir == enum.TradeSideSell,
		"hasClosingOrder":  true,
		"isGuaranteed":     false,
		"orderModeID":      3,
		"orderTypeID":      2,
		"orderPriceModeID": 2,
		"limitOrderPrice":  req.Limit.String(),
		"stopOrderPrice":   req.Stop.String(),
		"trailingPoint":    0,
		"closePositionID":  0,
		"isKaazingFeed":    true,
		"userAgent":        "Firefox (139.0)",
		"key":              req.Key,
	}
}

// SimTrade validates a trade without placing it; the result is discarded,
// matching the venue's own validation-only contract.
func (c *Client) SimTrade(ctx context.Context, req models.TradeRequest) error {
	_, err := postJSON(ctx, c.http, "/UTSAPI.asmx/RequestTradeSimulate", tradeRequestBody(req))
	return err
}

// Trade places a live order. Callers are expected to call SimTrade first;
// the facade enforces that ordering.
func (c *Client) Trade(ctx context.Context, req models.TradeRequest) (models.TradeResponse, error) {
	d, err := postJSON(ctx, c.http, "/UTSAPI.asmx/RequestTrade", tradeRequestBody(req))
	if err != nil {
		return models.TradeResponse{}, err
	}
	var out models.TradeResponse
	return out, jsonCodec.Unmarshal(d, &out)
}

const defaultKeepAliveInterval = 60 * time.Second

// StartKeepAlive posts UpdateClientSessionID every interval (60s when
// interval is zero) until StopKeepAlive is called. A failed attempt
// (transport error, non-200 status, or unparseable body) is retried
// immediately, throttled by a rate limiter so a flapping connection cannot
// busy-loop the venue.
func (c *Client) StartKeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}

	c.keepAliveStop = make(chan struct{})
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.keepAliveStop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.keepAliveOnce(ctx, limiter)
			}
		}
	}()
}

// StopKeepAlive stops the keep-alive goroutine started by StartKeepAlive.
func (c *Client) StopKeepAlive() {
	if c.keepAliveStop != nil {
		close(c.keepAliveStop)
	}
}

func (c *Client) keepAliveOnce(ctx context.Context, limiter *rate.Limiter) {
	for {
		d, err := postJSON(ctx, c.http, "/UTSAPI.asmx/UpdateClientSessionID", struct{}{})
		if err != nil {
			if c.log != nil {
				c.log.WithError(err).Warn("session keep-alive failed, retrying")
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			continue
		}

		var status struct {
			Status int `json:"Status"`
		}
		if err := jsonCodec.Unmarshal(d, &status); err == nil && status.Status != 0 {
			if c.log != nil {
				c.log.Warn("session keep-alive reports logged out")
			}
		}
		return
	}
}
