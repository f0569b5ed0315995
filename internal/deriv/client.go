package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const pollInterval = 5 * time.Second

// Client talks to the Deriv WebSocket API. Each operation opens its own
// session (dial, authorize, request, close); no long-lived shared socket
// is held between calls.
type Client struct {
	appID    string
	apiToken string
	endpoint string
	logger   zerolog.Logger
}

// NewClient creates a new Deriv API client.
func NewClient(appID, apiToken, endpoint string, logger zerolog.Logger) *Client {
	return &Client{
		appID:    appID,
		apiToken: apiToken,
		endpoint: endpoint,
		logger:   logger.With().Str("component", "deriv").Logger(),
	}
}

// session is one authorized WebSocket connection.
type session struct {
	conn *websocket.Conn
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope covers the response fields shared by all API calls.
type envelope struct {
	MsgType string    `json:"msg_type"`
	Error   *apiError `json:"error"`
}

func (c *Client) dial(ctx context.Context) (*session, error) {
	if c.apiToken == "" {
		return nil, fmt.Errorf("deriv API token is not configured")
	}

	url := fmt.Sprintf("%s?app_id=%s", c.endpoint, c.appID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing deriv API: %w", err)
	}

	s := &session{conn: conn}
	if _, err := s.call(ctx, map[string]any{"authorize": c.apiToken}, "authorize"); err != nil {
		s.close()
		return nil, fmt.Errorf("authorizing: %w", err)
	}
	return s, nil
}

func (s *session) close() {
	s.conn.Close()
}

// call sends one request and reads frames until a response with the wanted
// msg_type arrives, skipping unrelated stream frames.
func (s *session) call(ctx context.Context, payload map[string]any, wantType string) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		s.conn.SetReadDeadline(deadline)
	} else {
		s.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		s.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	}

	if err := s.conn.WriteJSON(payload); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		if env.Error != nil {
			return nil, fmt.Errorf("deriv API error %s: %s", env.Error.Code, env.Error.Message)
		}
		if env.MsgType == wantType {
			return raw, nil
		}
	}
}

// TicksHistory returns the latest count prices for a symbol, oldest first.
func (c *Client) TicksHistory(ctx context.Context, symbol string, count int) ([]decimal.Decimal, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	raw, err := s.call(ctx, map[string]any{
		"ticks_history": symbol,
		"end":           "latest",
		"count":         count,
		"style":         "ticks",
	}, "history")
	if err != nil {
		return nil, fmt.Errorf("ticks history for %s: %w", symbol, err)
	}

	var resp struct {
		History struct {
			Prices []json.Number `json:"prices"`
		} `json:"history"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing ticks history: %w", err)
	}

	prices := make([]decimal.Decimal, 0, len(resp.History.Prices))
	for _, p := range resp.History.Prices {
		d, err := decimal.NewFromString(p.String())
		if err != nil {
			return nil, fmt.Errorf("parsing price %q: %w", p, err)
		}
		prices = append(prices, d)
	}
	return prices, nil
}

// BuyContract places a binary contract.
func (c *Client) BuyContract(ctx context.Context, req BuyRequest) (*BuyResult, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	amount := req.Amount.Round(2)
	raw, err := s.call(ctx, map[string]any{
		"buy":   1,
		"price": amount,
		"parameters": map[string]any{
			"amount":        amount,
			"basis":         "stake",
			"contract_type": req.ContractType,
			"currency":      "USD",
			"duration":      req.Duration,
			"duration_unit": req.DurationUnit,
			"symbol":        req.Symbol,
		},
	}, "buy")
	if err != nil {
		return nil, fmt.Errorf("buying %s contract on %s: %w", req.ContractType, req.Symbol, err)
	}

	var resp struct {
		Buy struct {
			ContractID json.Number `json:"contract_id"`
			BuyPrice   json.Number `json:"buy_price"`
			StartTime  int64       `json:"start_time"`
		} `json:"buy"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing buy response: %w", err)
	}
	if resp.Buy.ContractID.String() == "" {
		return nil, fmt.Errorf("buy response missing contract id")
	}

	buyPrice, _ := decimal.NewFromString(resp.Buy.BuyPrice.String())
	return &BuyResult{
		ContractID: resp.Buy.ContractID.String(),
		BuyPrice:   buyPrice,
		StartTime:  time.Unix(resp.Buy.StartTime, 0),
	}, nil
}

// WaitForResult polls proposal_open_contract until the contract settles.
// It fails closed on timeout.
func (c *Client) WaitForResult(ctx context.Context, contractID string, timeout time.Duration) (*ContractResult, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := s.call(ctx, map[string]any{
			"proposal_open_contract": 1,
			"contract_id":            contractID,
		}, "proposal_open_contract")
		if err != nil {
			return nil, fmt.Errorf("polling contract %s: %w", contractID, err)
		}

		var resp struct {
			Contract struct {
				Status    string      `json:"status"`
				Profit    json.Number `json:"profit"`
				SellPrice json.Number `json:"sell_price"`
				EntrySpot json.Number `json:"entry_spot"`
				ExitSpot  json.Number `json:"exit_tick"`
			} `json:"proposal_open_contract"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("parsing contract detail: %w", err)
		}

		status := resp.Contract.Status
		if status == StatusWon || status == StatusLost {
			profit, _ := decimal.NewFromString(resp.Contract.Profit.String())
			sellPrice, _ := decimal.NewFromString(resp.Contract.SellPrice.String())
			entrySpot, _ := decimal.NewFromString(resp.Contract.EntrySpot.String())
			exitSpot, _ := decimal.NewFromString(resp.Contract.ExitSpot.String())
			return &ContractResult{
				ContractID: contractID,
				Status:     status,
				Profit:     profit,
				SellPrice:  sellPrice,
				EntrySpot:  entrySpot,
				ExitSpot:   exitSpot,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return nil, fmt.Errorf("contract %s did not settle within %s", contractID, timeout)
}

// Balance returns the account balance reported by the broker.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer s.close()

	raw, err := s.call(ctx, map[string]any{"balance": 1}, "balance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching balance: %w", err)
	}

	var resp struct {
		Balance struct {
			Balance json.Number `json:"balance"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("parsing balance: %w", err)
	}

	balance, err := decimal.NewFromString(resp.Balance.Balance.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing balance %q: %w", resp.Balance.Balance, err)
	}
	return balance, nil
}

// ActiveSymbols lists the symbols currently offered by the broker.
func (c *Client) ActiveSymbols(ctx context.Context) ([]Symbol, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	raw, err := s.call(ctx, map[string]any{"active_symbols": "brief"}, "active_symbols")
	if err != nil {
		return nil, fmt.Errorf("fetching active symbols: %w", err)
	}

	var resp struct {
		ActiveSymbols []struct {
			Symbol       string `json:"symbol"`
			DisplayName  string `json:"display_name"`
			Market       string `json:"market"`
			ExchangeOpen int    `json:"exchange_is_open"`
		} `json:"active_symbols"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing active symbols: %w", err)
	}

	symbols := make([]Symbol, 0, len(resp.ActiveSymbols))
	for _, sym := range resp.ActiveSymbols {
		symbols = append(symbols, Symbol{
			Name:        sym.Symbol,
			DisplayName: sym.DisplayName,
			Market:      sym.Market,
			IsOpen:      sym.ExchangeOpen == 1,
		})
	}
	return symbols, nil
}

// StreamTicks subscribes to the symbol's tick stream and delivers ticks on
// the channel until ctx is cancelled or the stream fails.
func (c *Client) StreamTicks(ctx context.Context, symbol string, out chan<- StreamTick) error {
	s, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.conn.WriteJSON(map[string]any{"ticks": symbol, "subscribe": 1}); err != nil {
		return fmt.Errorf("subscribing to %s ticks: %w", symbol, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.conn.SetReadDeadline(time.Now().Add(time.Minute))
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading %s tick stream: %w", symbol, err)
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("parsing stream frame: %w", err)
		}
		if env.Error != nil {
			return fmt.Errorf("deriv API error %s: %s", env.Error.Code, env.Error.Message)
		}
		if env.MsgType != "tick" {
			continue
		}

		var frame struct {
			Tick struct {
				Epoch   int64       `json:"epoch"`
				Quote   json.Number `json:"quote"`
				PipSize int         `json:"pip_size"`
			} `json:"tick"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("parsing tick frame: %w", err)
		}

		quote, err := decimal.NewFromString(frame.Tick.Quote.String())
		if err != nil {
			c.logger.Warn().Str("symbol", symbol).Str("quote", frame.Tick.Quote.String()).Msg("skipping unparseable tick")
			continue
		}

		tick := StreamTick{
			Symbol:     symbol,
			Epoch:      frame.Tick.Epoch,
			Quote:      quote,
			PipSize:    frame.Tick.PipSize,
			RawPayload: raw,
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
