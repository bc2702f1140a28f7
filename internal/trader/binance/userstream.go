package binance

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	binanceex "github.com/quantfold/basisarb/internal/exchange/binance"
	"github.com/quantfold/basisarb/internal/model"
)

const defaultUserStreamURL = "wss://ws-api.binance.com/ws-api/v3"

// UserDataEvent is a typed event from the user data stream. Exactly one of
// the pointers is set; unrecognized payloads land in Raw.
type UserDataEvent struct {
	ExecutionReport *ExecutionReport
	AccountPosition *OutboundAccountPosition
	BalanceUpdate   *BalanceUpdate
	Raw             json.RawMessage
}

type ExecutionReport struct {
	Symbol          string `json:"s"`
	ClientOrderID   string `json:"c"`
	Side            string `json:"S"`
	OrderType       string `json:"o"`
	OrderID         int64  `json:"i"`
	CumulativeQty   string `json:"z"`
	Commission      string `json:"n"`
	CommissionAsset string `json:"N"`
	OrderStatus     string `json:"X"`
}

type OutboundAccountPosition struct {
	Balances []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

type BalanceUpdate struct {
	Asset string `json:"a"`
	Delta string `json:"d"`
}

// UserStream is the persistent authenticated WebSocket delivering order and
// balance events.
type UserStream struct {
	apiKey    string
	apiSecret string
	url       string
}

func NewUserStream(apiKey, apiSecret string) *UserStream {
	return &UserStream{apiKey: apiKey, apiSecret: apiSecret, url: defaultUserStreamURL}
}

// Run subscribes and dispatches events until ctx is done, reconnecting after
// the usual backoff on any close or error.
func (s *UserStream) Run(ctx context.Context, handler func(UserDataEvent)) error {
	if s.apiKey == "" || s.apiSecret == "" {
		return exchange.Vendorf(model.VenueBinance, "API key not set")
	}
	for {
		if err := s.connect(ctx, handler); err != nil {
			log.Error().Err(err).Msg("user data stream error, reconnecting")
		} else {
			log.Warn().Msg("user data stream closed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

type wsRequest struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

type wsResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// signParams signs the alphabetically sorted k=v&... serialization of params
// (signature excluded) and stores the result back into the map.
func signParams(params map[string]string, secret string) {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	params["signature"] = binanceex.Sign(secret, strings.Join(pairs, "&"))
}

func (s *UserStream) connect(ctx context.Context, handler func(UserDataEvent)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return exchange.Transport("binance: dial user stream", err)
	}
	defer conn.Close()
	log.Info().Str("url", s.url).Msg("user data stream connected")

	params := map[string]string{
		"apiKey":    s.apiKey,
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	signParams(params, s.apiSecret)

	req := wsRequest{ID: "user-stream-1", Method: "userDataStream.subscribe.signature", Params: params}
	if err := conn.WriteJSON(req); err != nil {
		return exchange.Transport("binance: send subscribe", err)
	}

	// The first frame acknowledges (or rejects) the subscription.
	_, data, err := conn.ReadMessage()
	if err != nil {
		return exchange.Transport("binance: read subscribe response", err)
	}
	var resp wsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return exchange.Vendorf(model.VenueBinance, "failed to parse subscribe response: %v", err)
	}
	if resp.Error != nil {
		return exchange.Vendorf(model.VenueBinance, "subscribe failed: code=%d, msg=%s",
			resp.Error.Code, resp.Error.Msg)
	}
	log.Info().Msg("user data stream subscribed")

	// pong must echo the ping payload
	conn.SetPingHandler(func(payload string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil // outer loop reconnects
		}
		if msgType == websocket.TextMessage {
			handler(parseUserDataEvent(data))
		}
	}
}

// parseUserDataEvent maps the "e" discriminator to a typed event; anything
// else is passed through raw.
func parseUserDataEvent(data []byte) UserDataEvent {
	// Responses to API calls wrap the event in a result field.
	var resp wsResponse
	if err := json.Unmarshal(data, &resp); err == nil && len(resp.Result) > 0 {
		data = resp.Result
	}

	var envelope struct {
		Event json.RawMessage `json:"event"`
		Type  string          `json:"e"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return UserDataEvent{Raw: data}
	}
	if len(envelope.Event) > 0 {
		data = envelope.Event
		_ = json.Unmarshal(data, &envelope)
	}

	switch envelope.Type {
	case "executionReport":
		var r ExecutionReport
		if err := json.Unmarshal(data, &r); err == nil {
			return UserDataEvent{ExecutionReport: &r}
		}
	case "outboundAccountPosition":
		var p OutboundAccountPosition
		if err := json.Unmarshal(data, &p); err == nil {
			return UserDataEvent{AccountPosition: &p}
		}
	case "balanceUpdate":
		var b BalanceUpdate
		if err := json.Unmarshal(data, &b); err == nil {
			return UserDataEvent{BalanceUpdate: &b}
		}
	default:
		log.Debug().Str("type", envelope.Type).Msg("unknown user data event type")
	}
	return UserDataEvent{Raw: data}
}
