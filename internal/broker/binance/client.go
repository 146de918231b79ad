// Package binance adapts the Binance spot API to the brokerage
// contracts the robot core consumes. Prices cross the boundary as
// decimals; the SDK's string payloads never leak upward.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"wick/internal/broker"
	"wick/internal/logger"
	"wick/internal/market"
)

const maxKlinesPerRequest = 1000

// Client implements MarketService, OrdersService, InstrumentsService
// and AccountsService on one spot connection.
type Client struct {
	cfg        Config
	api        *gobinance.Client
	commission decimal.Decimal

	// Binance polls orders by (symbol, clientOrderID), and its order
	// payloads carry quantities rather than lots; remember the symbol
	// and lot count of every posted order.
	mu     sync.Mutex
	posted map[string]postedOrder
}

type postedOrder struct {
	Symbol string
	Lots   int64
}

func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	gobinance.UseTestnet = cfg.UseTestnet

	api := gobinance.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		api.BaseURL = base
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	api.HTTPClient = httpClient

	return &Client{
		cfg:        cfg,
		api:        api,
		commission: decimal.NewFromFloat(cfg.CommissionPercent),
		posted:     make(map[string]postedOrder),
	}, nil
}

func (c *Client) GetLastCandles(ctx context.Context, req broker.GetLastCandlesRequest) ([]market.Candle, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("binance: non-positive candle amount %d", req.Amount)
	}
	svc := c.api.NewKlinesService().
		Symbol(req.InstrumentID).
		Interval(string(req.Interval)).
		Limit(min(req.Amount, maxKlinesPerRequest))
	if !req.From.IsZero() {
		svc = svc.StartTime(req.From.UnixMilli())
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: fetching klines for %s: %w", req.InstrumentID, err)
	}
	return convertKlines(klines, time.Now())
}

func (c *Client) GetCandles(ctx context.Context, req broker.GetCandlesRequest) ([]market.Candle, error) {
	step := req.Interval.Duration()
	var out []market.Candle
	cursor := req.From
	for cursor.Before(req.To) {
		klines, err := c.api.NewKlinesService().
			Symbol(req.InstrumentID).
			Interval(string(req.Interval)).
			StartTime(cursor.UnixMilli()).
			EndTime(req.To.UnixMilli() - 1).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance: fetching kline range for %s: %w", req.InstrumentID, err)
		}
		if len(klines) == 0 {
			break
		}
		candles, err := convertKlines(klines, time.Now())
		if err != nil {
			return nil, err
		}
		out = append(out, candles...)
		last := time.UnixMilli(klines[len(klines)-1].OpenTime)
		cursor = last.Add(step)
		if len(klines) < maxKlinesPerRequest {
			break
		}
	}
	return out, nil
}

func (c *Client) PostMarketOrder(ctx context.Context, req broker.PostMarketOrderRequest) (broker.Order, error) {
	instrument, err := c.GetInstrumentByID(ctx, req.InstrumentID)
	if err != nil {
		return broker.Order{}, err
	}
	quantity := decimal.NewFromInt(req.Lots).Mul(decimal.NewFromInt(instrument.Lot))

	c.mu.Lock()
	c.posted[req.OrderID] = postedOrder{Symbol: req.InstrumentID, Lots: req.Lots}
	c.mu.Unlock()

	resp, err := c.api.NewCreateOrderService().
		Symbol(req.InstrumentID).
		Side(sideFor(req.Direction)).
		Type(gobinance.OrderTypeMarket).
		Quantity(quantity.String()).
		NewClientOrderID(req.OrderID).
		Do(ctx)
	if err != nil {
		// A duplicate client order id means the order already exists;
		// honour the idempotency contract by returning its state.
		if existing, stateErr := c.GetOrderState(ctx, req.AccountID, req.OrderID); stateErr == nil {
			logger.Warnf("Binance: order id=%s already posted, reusing its state", req.OrderID)
			return existing, nil
		}
		return broker.Order{}, fmt.Errorf("binance: posting order %s: %w", req.OrderID, err)
	}

	quoteQty := parseDecimal(resp.CummulativeQuoteQuantity)
	return broker.Order{
		ID:              req.OrderID,
		InstrumentID:    req.InstrumentID,
		AccountID:       req.AccountID,
		Direction:       req.Direction,
		Lots:            req.Lots,
		Status:          statusFor(resp.Status),
		TotalPrice:      quoteQty,
		TotalCommission: quoteQty.Mul(c.commission),
	}, nil
}

func (c *Client) GetOrderState(ctx context.Context, accountID, orderID string) (broker.Order, error) {
	c.mu.Lock()
	posted, ok := c.posted[orderID]
	c.mu.Unlock()
	if !ok {
		return broker.Order{}, fmt.Errorf("binance: order %s was not posted by this process", orderID)
	}

	resp, err := c.api.NewGetOrderService().
		Symbol(posted.Symbol).
		OrigClientOrderID(orderID).
		Do(ctx)
	if err != nil {
		return broker.Order{}, fmt.Errorf("binance: polling order %s: %w", orderID, err)
	}
	return orderFromState(resp, orderID, accountID, posted, c.commission), nil
}

// orderFromState maps a polled exchange order onto the broker contract.
// Lots come from the posted-order record: the exchange reports executed
// quantity, which only equals lots for whole-unit instruments.
func orderFromState(resp *gobinance.Order, orderID, accountID string, posted postedOrder, commission decimal.Decimal) broker.Order {
	quoteQty := parseDecimal(resp.CummulativeQuoteQuantity)
	direction := broker.OrderDirectionBuy
	if resp.Side == gobinance.SideTypeSell {
		direction = broker.OrderDirectionSell
	}
	return broker.Order{
		ID:              orderID,
		InstrumentID:    posted.Symbol,
		AccountID:       accountID,
		Direction:       direction,
		Lots:            posted.Lots,
		Status:          statusFor(resp.Status),
		TotalPrice:      quoteQty,
		TotalCommission: quoteQty.Mul(commission),
	}
}

func (c *Client) CancelOrder(ctx context.Context, _, orderID string) error {
	c.mu.Lock()
	posted, ok := c.posted[orderID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("binance: order %s was not posted by this process", orderID)
	}
	_, err := c.api.NewCancelOrderService().
		Symbol(posted.Symbol).
		OrigClientOrderID(orderID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: cancelling order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) GetInstrumentByID(ctx context.Context, id string) (broker.Instrument, error) {
	info, err := c.api.NewExchangeInfoService().Symbols(id).Do(ctx)
	if err != nil {
		return broker.Instrument{}, fmt.Errorf("binance: fetching exchange info for %s: %w", id, err)
	}
	for _, sym := range info.Symbols {
		if sym.Symbol != id {
			continue
		}
		return broker.Instrument{
			ID:       sym.Symbol,
			Ticker:   sym.Symbol,
			Exchange: "BINANCE",
			// Spot trades whole units; lot granularity comes from the
			// LOT_SIZE filter when sizing, not from a contract lot.
			Lot:          1,
			MinPriceStep: minPriceStep(sym.Filters),
			Tradable:     sym.Status == "TRADING",
		}, nil
	}
	return broker.Instrument{}, fmt.Errorf("binance: unknown instrument %s", id)
}

// GetTradingSchedule synthesizes round-the-clock trading days: the
// venue never closes, but the scheduling loop still consumes a
// calendar so exchange-market adapters stay drop-in.
func (c *Client) GetTradingSchedule(_ context.Context, _ string, from, to time.Time) ([]market.TradingDay, error) {
	var days []market.TradingDay
	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		days = append(days, market.TradingDay{
			Date:         day,
			IsTradingDay: true,
			StartTime:    day,
			EndTime:      day.Add(24 * time.Hour),
		})
	}
	return days, nil
}

func (c *Client) GetAccounts(ctx context.Context) ([]broker.Account, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: fetching account: %w", err)
	}
	return []broker.Account{{
		ID:     "spot",
		Name:   acct.AccountType,
		Status: "open",
	}}, nil
}

// minPriceStep digs the PRICE_FILTER tick size out of the raw filter
// payloads. The SDK exposes filters as loose maps, so this goes through
// gjson rather than a typed struct.
func minPriceStep(filters []map[string]interface{}) decimal.Decimal {
	raw, err := json.Marshal(filters)
	if err != nil {
		return decimal.Zero
	}
	tick := gjson.GetBytes(raw, `#(filterType=="PRICE_FILTER").tickSize`)
	if !tick.Exists() {
		return decimal.Zero
	}
	return parseDecimal(tick.String())
}

func convertKlines(klines []*gobinance.Kline, now time.Time) ([]market.Candle, error) {
	out := make([]market.Candle, 0, len(klines))
	for _, kl := range klines {
		if kl == nil {
			continue
		}
		candle, err := convertKline(kl, now)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

func convertKline(kl *gobinance.Kline, now time.Time) (market.Candle, error) {
	open, err := decimal.NewFromString(kl.Open)
	if err != nil {
		return market.Candle{}, fmt.Errorf("binance: bad open price %q: %w", kl.Open, err)
	}
	high, err := decimal.NewFromString(kl.High)
	if err != nil {
		return market.Candle{}, fmt.Errorf("binance: bad high price %q: %w", kl.High, err)
	}
	low, err := decimal.NewFromString(kl.Low)
	if err != nil {
		return market.Candle{}, fmt.Errorf("binance: bad low price %q: %w", kl.Low, err)
	}
	clos, err := decimal.NewFromString(kl.Close)
	if err != nil {
		return market.Candle{}, fmt.Errorf("binance: bad close price %q: %w", kl.Close, err)
	}
	return market.Candle{
		Open:       open,
		High:       high,
		Low:        low,
		Close:      clos,
		Time:       time.UnixMilli(kl.OpenTime),
		IsComplete: kl.CloseTime < now.UnixMilli(),
	}, nil
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func sideFor(d broker.OrderDirection) gobinance.SideType {
	if d == broker.OrderDirectionSell {
		return gobinance.SideTypeSell
	}
	return gobinance.SideTypeBuy
}

func statusFor(s gobinance.OrderStatusType) broker.OrderStatus {
	switch s {
	case gobinance.OrderStatusTypeNew, gobinance.OrderStatusTypePendingCancel:
		return broker.OrderStatusNew
	case gobinance.OrderStatusTypePartiallyFilled:
		return broker.OrderStatusPartiallyCompleted
	case gobinance.OrderStatusTypeFilled:
		return broker.OrderStatusCompleted
	case gobinance.OrderStatusTypeCanceled:
		return broker.OrderStatusCancelledByUser
	default:
		return broker.OrderStatusRejected
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
