package wsclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"td365/codec"
	"td365/enum"
	"td365/models"
	"td365/wstransport"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary
var tracer = otel.Tracer("td365/wsclient")

const clientVersion = "1.0.0.6"
const defaultBackoff = 1 * time.Second

// State is a node of the WS client's connection state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingConnectResponse
	AwaitingAuthResponse
	Ready
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingConnectResponse:
		return "awaiting_connect_response"
	case AwaitingAuthResponse:
		return "awaiting_auth_response"
	case Ready:
		return "ready"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ProtocolError reports a venue-level protocol violation: authentication
// rejected, which terminates the connection, or a subscribeResponse with
// HasError set, which is delivered as an EventError while the connection
// stays up.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("wsclient: %s: %v", e.Op, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// ContinuableError wraps a transport failure the client will recover from
// by reconnecting; see isContinuable for the classification.
type ContinuableError struct{ Err error }

func (e *ContinuableError) Error() string { return fmt.Sprintf("wsclient: continuable: %v", e.Err) }
func (e *ContinuableError) Unwrap() error { return e.Err }

// FatalError wraps any other transport or encoding failure; the client
// does not retry.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return fmt.Sprintf("wsclient: fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Callbacks is the push-model delivery interface. Nil members are simply
// not invoked for that event kind.
type Callbacks struct {
	OnTick             func(models.Tick)
	OnAccountSummary   func(models.AccountSummary)
	OnAccountDetails   func(models.AccountDetails)
	OnTradeEstablished func(models.TradeDetails)
	OnSubscribeAck     func(models.SubscribeAck)
	OnError            func(error)
}

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
)

type command struct {
	kind    commandKind
	quoteID int
}

// frameEnvelope is the wire shape common to every inbound server message.
type frameEnvelope struct {
	T   string              `json:"t"`
	Cid string              `json:"cid"`
	D   jsoniter.RawMessage `json:"d"`
}

type authFrame struct {
	Action             string `json:"action"`
	LoginID            string `json:"loginId"`
	TradingAccountType string `json:"tradingAccountType"`
	Token              string `json:"token"`
	Reason             string `json:"reason"`
	ClientVersion      string `json:"clientVersion"`
}

type reconnectFrame struct {
	Action               string `json:"action"`
	OriginalConnectionID string `json:"originalConnectionId"`
}

type optionsFrame struct {
	Action string `json:"action"`
	Data   string `json:"data"`
}

type subscribeFrame struct {
	Action        string `json:"action"`
	QuoteID       int    `json:"quoteId"`
	PriceGrouping string `json:"priceGrouping"`
}

type heartbeatEcho struct {
	SentByServer     jsoniter.RawMessage `json:"SentByServer"`
	MessagesReceived jsoniter.RawMessage `json:"MessagesReceived"`
	PricesReceived   jsoniter.RawMessage `json:"PricesReceived"`
	MessagesSent     jsoniter.RawMessage `json:"MessagesSent"`
	PricesSent       jsoniter.RawMessage `json:"PricesSent"`
	Visible          bool                `json:"Visible"`
	Action           string              `json:"action"`
}

// priceFrameKeys fixes the processing order of the "p" frame's grouping
// keys so dispatch order is deterministic regardless of map iteration.
var priceFrameKeys = []struct {
	Key      string
	Grouping enum.Grouping
}{
	{"sp", enum.GroupingSampled},
	{"gp", enum.GroupingGrouped},
	{"dp", enum.GroupingDelayed},
	{"cp", enum.GroupingCandle1m},
}

// Client owns one WS session: the transport, the token tuple, the
// connection id, and the authoritative subscription set. All mutation of
// state, connectionID, and subscribed happens either on the loop
// goroutine or behind mu; callers interact through Subscribe, Unsubscribe,
// Close, Wait, and State.
type Client struct {
	log       *logrus.Logger
	sessionID uuid.UUID
	backoff   time.Duration

	url, loginID, token string

	mu           sync.Mutex
	state        State
	connectionID string
	subscribed   []int

	transport *wstransport.Transport

	events chan models.Event
	cmds   chan command

	shutdown atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	readyCh   chan error
	readyOnce sync.Once
	everReady atomic.Bool
}

// New returns a Client with a fresh session correlation id. log may be
// nil.
func New(log *logrus.Logger) *Client {
	return &Client{
		log:       log,
		sessionID: uuid.New(),
		backoff:   defaultBackoff,
		state:     Disconnected,
		events:    make(chan models.Event, 256),
		cmds:      make(chan command, 128),
		stopCh:    make(chan struct{}),
		readyCh:   make(chan error, 1),
	}
}

// SetBackoff overrides the delay between reconnect attempts (default 1s).
func (c *Client) SetBackoff(d time.Duration) { c.backoff = d }

// SessionID is the client-generated correlation id attached to every log
// line for this session; it is never sent over the wire.
func (c *Client) SessionID() uuid.UUID { return c.sessionID }

// State returns the current state machine node.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the venue-assigned connection id, or "" before the
// first successful authentication.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// Subscribed returns a snapshot of the authoritative subscription set.
func (c *Client) Subscribed() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

// Start dials url, runs the connect/authenticate handshake, and blocks
// until Ready is reached or a fatal/cancellation error occurs. The loop
// continues running on a background goroutine after Start returns nil,
// reconnecting on continuable errors until Close is called.
func (c *Client) Start(ctx context.Context, url, loginID, token string) error {
	c.url, c.loginID, c.token = url, loginID, token
	go c.run(ctx)
	select {
	case err := <-c.readyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close requests a clean shutdown: the loop finishes its current frame,
// sends a normal WS close, and exits.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		c.shutdown.Store(true)
		close(c.stopCh)
	})
}

// Subscribe posts a subscribe intent to the loop. It is fire-and-forget:
// duplicate subscribes to an id already in the subscription set are a
// no-op. Returns an error only if the command queue is saturated.
func (c *Client) Subscribe(quoteID int) error {
	select {
	case c.cmds <- command{kind: cmdSubscribe, quoteID: quoteID}:
		return nil
	default:
		return fmt.Errorf("wsclient: command queue full, dropped subscribe(%d)", quoteID)
	}
}

// Unsubscribe posts an unsubscribe intent to the loop; see Subscribe.
func (c *Client) Unsubscribe(quoteID int) error {
	select {
	case c.cmds <- command{kind: cmdUnsubscribe, quoteID: quoteID}:
		return nil
	default:
		return fmt.Errorf("wsclient: command queue full, dropped unsubscribe(%d)", quoteID)
	}
}

// Wait returns the next decoded event. timeout <= 0 blocks indefinitely;
// otherwise a deadline hit returns an EventTimeout rather than an error.
func (c *Client) Wait(timeout time.Duration) (models.Event, error) {
	if timeout <= 0 {
		return <-c.events, nil
	}
	select {
	case ev := <-c.events:
		return ev, nil
	case <-time.After(timeout):
		return models.Event{Kind: models.EventTimeout}, nil
	}
}

// RunUntilShutdown is the push-model entry point: it starts the
// connection, then dispatches every decoded event to cb until the
// connection is closed (cleanly or fatally).
func (c *Client) RunUntilShutdown(ctx context.Context, url, loginID, token string, cb Callbacks) error {
	if err := c.Start(ctx, url, loginID, token); err != nil {
		return err
	}
	for {
		ev, _ := c.Wait(0)
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

// connResult classifies how one connection attempt ended, so run knows
// whether to retry, stop cleanly, or stop with an error.
type connResult int

const (
	connContinuable connResult = iota
	connFatal
	connShutdown
)

func (c *Client) run(ctx context.Context) {
	attempt := 0
	for {
		result, err := c.connectAndServe(ctx, attempt)
		switch result {
		case connShutdown:
			c.setState(Closed)
			c.emit(models.Event{Kind: models.EventConnectionClosed})
			c.signalReady(nil)
			return
		case connFatal:
			c.setState(Closed)
			if err != nil {
				c.emit(models.Event{Kind: models.EventError, Err: err})
			}
			c.emit(models.Event{Kind: models.EventConnectionClosed})
			c.signalReady(err)
			return
		case connContinuable:
			c.setState(Reconnecting)
			c.logf(logrus.WarnLevel, "reconnecting after continuable error", logrus.Fields{"error": err})
			attempt++
			select {
			case <-time.After(c.backoff):
			case <-c.stopCh:
				c.setState(Closed)
				c.emit(models.Event{Kind: models.EventConnectionClosed})
				return
			case <-ctx.Done():
				c.setState(Closed)
				c.emit(models.Event{Kind: models.EventConnectionClosed})
				return
			}
		}
	}
}

// connectAndServe dials one connection, runs its message loop until a
// terminal condition, and closes the transport before returning.
// A dial failure before Ready has ever been reached (the first attempt, or
// a retry after an early drop) is fatal, so Start returns an error rather
// than retry silently forever; once Ready has been reached, a dial failure
// is continuable, since the caller has already observed Ready and owns
// the decision to keep waiting by not calling Close.
func (c *Client) connectAndServe(ctx context.Context, attempt int) (connResult, error) {
	ctx, span := tracer.Start(ctx, "wsclient.connect")
	defer span.End()

	c.setState(Connecting)
	transport, err := wstransport.Connect(ctx, c.url)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if attempt == 0 || !c.everReady.Load() {
			return connFatal, &FatalError{Err: err}
		}
		return connContinuable, &ContinuableError{Err: err}
	}
	c.transport = transport
	defer func() {
		_ = c.transport.Close()
		c.transport = nil
	}()

	done := make(chan struct{})
	defer close(done)

	c.setState(AwaitingConnectResponse)

	frameCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go readPump(transport, frameCh, errCh, done)

	for {
		select {
		case <-ctx.Done():
			return connShutdown, nil
		case <-c.stopCh:
			return connShutdown, nil
		case raw := <-frameCh:
			if err := c.handleFrame(ctx, raw); err != nil {
				span.SetStatus(codes.Error, err.Error())
				var contErr *ContinuableError
				if errors.As(err, &contErr) {
					return connContinuable, err
				}
				return connFatal, err
			}
		case err := <-errCh:
			if isContinuable(err) {
				return connContinuable, &ContinuableError{Err: err}
			}
			return connFatal, &FatalError{Err: err}
		case cmd := <-c.cmds:
			if err := c.handleCommand(cmd); err != nil {
				var contErr *ContinuableError
				if errors.As(err, &contErr) {
					return connContinuable, err
				}
				return connFatal, err
			}
		}
	}
}

// readPump runs on its own goroutine for the lifetime of one connection. It
// selects against done on every send so a consumer that has already
// returned (e.g. on a send-side continuable error elsewhere in
// connectAndServe) never leaves it blocked on a full channel.
func readPump(t *wstransport.Transport, frameCh chan<- string, errCh chan<- error, done <-chan struct{}) {
	for {
		msg, err := t.ReadMessage(0)
		if err != nil {
			select {
			case errCh <- err:
			case <-done:
			}
			return
		}
		select {
		case frameCh <- msg:
		case <-done:
			return
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, raw string) error {
	_, span := tracer.Start(ctx, "wsclient.frame")
	defer span.End()

	var env frameEnvelope
	if err := jsonCodec.UnmarshalFromString(raw, &env); err != nil {
		c.logf(logrus.WarnLevel, "malformed frame envelope", logrus.Fields{"error": err.Error()})
		return nil
	}
	span.SetAttributes(attribute.String("frame.type", env.T))

	switch env.T {
	case "connectResponse":
		return c.sendAuthentication()
	case "authenticationResponse":
		return c.onAuthenticationResponse(env)
	case "reconnectResponse":
		// Its own terminal case: no heartbeat echo follows.
		c.setConnectionID(env.Cid)
		return nil
	case "heartbeat":
		return c.onHeartbeat(env)
	case "subscribeResponse":
		return c.onSubscribeResponse(env)
	case "p":
		return c.onPriceData(env)
	case "accountSummary":
		return c.onAccountSummary(env)
	case "accountDetails":
		return c.onAccountDetails(env)
	case "tradeEstablished":
		return c.onTradeEstablished(env)
	default:
		c.logf(logrus.DebugLevel, "unhandled frame tag", logrus.Fields{"t": env.T})
		return nil
	}
}

func (c *Client) sendAuthentication() error {
	c.setState(AwaitingAuthResponse)
	return c.sendFrame(authFrame{
		Action:             "authentication",
		LoginID:            c.loginID,
		TradingAccountType: "SPREAD",
		Token:              c.token,
		Reason:             "Connect",
		ClientVersion:      clientVersion,
	})
}

// onAuthenticationResponse checks d.Result, sends a reconnect frame naming
// the prior connection id if there was one, records the new id, sends the
// options frame, marks the client Ready, and replays the subscription set.
func (c *Client) onAuthenticationResponse(env frameEnvelope) error {
	var d struct {
		Result bool `json:"Result"`
	}
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}
	if !d.Result {
		return &ProtocolError{Op: "authentication", Err: fmt.Errorf("venue rejected authentication")}
	}

	if prior := c.ConnectionID(); prior != "" {
		if err := c.sendFrame(reconnectFrame{Action: "reconnect", OriginalConnectionID: prior}); err != nil {
			return err
		}
	}
	c.setConnectionID(env.Cid)

	if err := c.sendFrame(optionsFrame{
		Action: "options",
		Data:   `{"SubscribeToAccountSummary":true,"SubscribeToAccountDetails":true}`,
	}); err != nil {
		return err
	}

	c.setState(Ready)
	c.everReady.Store(true)
	c.signalReady(nil)

	return c.replaySubscriptions()
}

func (c *Client) onHeartbeat(env frameEnvelope) error {
	var d map[string]jsoniter.RawMessage
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}
	return c.sendFrame(heartbeatEcho{
		SentByServer:     d["SentByServer"],
		MessagesReceived: d["MessagesReceived"],
		PricesReceived:   d["PricesReceived"],
		MessagesSent:     d["MessagesSent"],
		PricesSent:       d["PricesSent"],
		Visible:          true,
		Action:           "heartbeat",
	})
}

func (c *Client) onSubscribeResponse(env frameEnvelope) error {
	var d struct {
		HasError      bool     `json:"HasError"`
		Current       []string `json:"Current"`
		PriceGrouping string   `json:"PriceGrouping"`
	}
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}
	if d.HasError {
		c.emit(models.Event{Kind: models.EventError, Err: &ProtocolError{
			Op: "subscribeResponse", Err: fmt.Errorf("venue reported HasError"),
		}})
		return nil
	}

	grouping, ok := enum.GroupingFromPriceGrouping(d.PriceGrouping)
	if !ok {
		c.logf(logrus.WarnLevel, "unrecognized PriceGrouping", logrus.Fields{"value": d.PriceGrouping})
		return nil
	}

	now := time.Now()
	ticks := make([]models.Tick, 0, len(d.Current))
	for _, line := range d.Current {
		t, err := codec.ParseTick(line, grouping, now)
		if err != nil {
			c.logf(logrus.WarnLevel, "malformed tick in subscribeResponse", logrus.Fields{"error": err.Error()})
			continue
		}
		ticks = append(ticks, t)
		c.emit(models.Event{Kind: models.EventTick, Tick: t})
	}
	c.emit(models.Event{Kind: models.EventSubscribeAck, SubscribeAck: models.SubscribeAck{
		Grouping: grouping, Ticks: ticks,
	}})
	return nil
}

func (c *Client) onPriceData(env frameEnvelope) error {
	var d map[string]jsoniter.RawMessage
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}

	now := time.Now()
	for _, pf := range priceFrameKeys {
		raw, ok := d[pf.Key]
		if !ok {
			continue
		}
		var lines []string
		if err := jsonCodec.Unmarshal(raw, &lines); err != nil {
			c.logf(logrus.WarnLevel, "malformed price group", logrus.Fields{"key": pf.Key, "error": err.Error()})
			continue
		}
		for _, line := range lines {
			t, err := codec.ParseTick(line, pf.Grouping, now)
			if err != nil {
				c.logf(logrus.WarnLevel, "malformed tick in price frame", logrus.Fields{"key": pf.Key, "error": err.Error()})
				continue
			}
			c.emit(models.Event{Kind: models.EventTick, Tick: t})
		}
	}
	return nil
}

// onAccountSummary skips PlatformID == 0: the venue emits it as a
// non-trading placeholder (spec.md §9 open question (b), taken from the
// source and not otherwise documented by the venue).
func (c *Client) onAccountSummary(env frameEnvelope) error {
	var d models.AccountSummary
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}
	if d.PlatformID == 0 {
		return nil
	}
	c.emit(models.Event{Kind: models.EventAccountSummary, AccountSummary: d})
	return nil
}

func (c *Client) onAccountDetails(env frameEnvelope) error {
	var d models.AccountDetails
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}
	c.emit(models.Event{Kind: models.EventAccountDetails, AccountDetails: d})
	return nil
}

func (c *Client) onTradeEstablished(env frameEnvelope) error {
	var d models.TradeDetails
	if err := jsonCodec.Unmarshal(env.D, &d); err != nil {
		return &FatalError{Err: err}
	}
	c.emit(models.Event{Kind: models.EventTradeEstablished, TradeEstablished: d})
	return nil
}

func (c *Client) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdSubscribe:
		if !c.subscribeIfNew(cmd.quoteID) {
			return nil
		}
		if c.State() == Ready {
			return c.sendSubscribeFrame("subscribe", cmd.quoteID)
		}
	case cmdUnsubscribe:
		if !c.unsubscribeIfPresent(cmd.quoteID) {
			return nil
		}
		if c.State() == Ready {
			return c.sendSubscribeFrame("unsubscribe", cmd.quoteID)
		}
	}
	return nil
}

// replaySubscriptions sends one subscribe frame per entry of the
// authoritative set, in subscribe order, after a successful
// authentication (spec.md §8: "subscribed is replayed exactly once per
// successful re-authentication").
func (c *Client) replaySubscriptions() error {
	for _, q := range c.Subscribed() {
		if err := c.sendSubscribeFrame("subscribe", q); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendSubscribeFrame(action string, quoteID int) error {
	return c.sendFrame(subscribeFrame{Action: action, QuoteID: quoteID, PriceGrouping: "Sampled"})
}

func (c *Client) sendFrame(v any) error {
	buf, err := jsonCodec.Marshal(v)
	if err != nil {
		return &FatalError{Err: err}
	}
	if err := c.transport.Send(string(buf)); err != nil {
		if isContinuable(err) {
			return &ContinuableError{Err: err}
		}
		return &FatalError{Err: err}
	}
	return nil
}

// emit blocks until the consumer drains the events channel, guaranteeing
// the ordering property spec.md §5 requires rather than dropping events
// under backpressure.
func (c *Client) emit(ev models.Event) {
	c.events <- ev
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logf(logrus.DebugLevel, "state transition", logrus.Fields{"state": s.String()})
}

func (c *Client) setConnectionID(id string) {
	c.mu.Lock()
	c.connectionID = id
	c.mu.Unlock()
}

func (c *Client) subscribeIfNew(quoteID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.subscribed {
		if q == quoteID {
			return false
		}
	}
	c.subscribed = append(c.subscribed, quoteID)
	return true
}

func (c *Client) unsubscribeIfPresent(quoteID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.subscribed {
		if q == quoteID {
			c.subscribed = append(c.subscribed[:i], c.subscribed[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Client) signalReady(err error) {
	c.readyOnce.Do(func() { c.readyCh <- err })
}

func (c *Client) logf(level logrus.Level, msg string, fields logrus.Fields) {
	if c.log == nil {
		return
	}
	entry := c.log.WithField("session_id", c.sessionID.String())
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Log(level, msg)
}

// isContinuable classifies a transport error: a WS close, EOF or
// unexpected EOF (a truncated stream), a closed network connection
// (operation aborted), a broken pipe, or a connection reset are recovered
// by reconnecting; anything else is fatal.
func isContinuable(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"use of closed network connection",
		"broken pipe",
		"connection reset",
		"EOF",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
