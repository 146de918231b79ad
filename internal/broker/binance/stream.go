package binance

import (
	"context"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"wick/internal/broker"
	"wick/internal/logger"
)

// Stream fans one aggTrade websocket per symbol out to last-price
// subscribers. The registry is instance owned; the connection for a
// symbol starts with its first subscriber and stops with its last.
type Stream struct {
	mu      sync.Mutex
	nextID  int
	symbols map[string]*symbolFeed
}

type symbolFeed struct {
	handlers map[int]broker.LastPriceHandler
	cancel   context.CancelFunc
}

func NewStream() *Stream {
	return &Stream{symbols: make(map[string]*symbolFeed)}
}

func (s *Stream) SubscribeLastPrice(instrumentID string, handler broker.LastPriceHandler) func() {
	symbol := strings.ToUpper(strings.TrimSpace(instrumentID))

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	feed, ok := s.symbols[symbol]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		feed = &symbolFeed{
			handlers: make(map[int]broker.LastPriceHandler),
			cancel:   cancel,
		}
		s.symbols[symbol] = feed
		go s.runTradeLoop(ctx, symbol)
	}
	feed.handlers[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		feed, ok := s.symbols[symbol]
		if !ok {
			return
		}
		delete(feed.handlers, id)
		if len(feed.handlers) == 0 {
			feed.cancel()
			delete(s.symbols, symbol)
		}
	}
}

// Close drops every subscription and connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, feed := range s.symbols {
		feed.cancel()
		delete(s.symbols, symbol)
	}
	return nil
}

func (s *Stream) dispatch(symbol string, event *gobinance.WsAggTradeEvent) {
	if event == nil {
		return
	}
	price := parseDecimal(event.Price)
	if price.IsZero() {
		return
	}

	s.mu.Lock()
	feed, ok := s.symbols[symbol]
	if !ok {
		s.mu.Unlock()
		return
	}
	handlers := make([]broker.LastPriceHandler, 0, len(feed.handlers))
	for _, h := range feed.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(price)
	}
}

// runTradeLoop keeps the websocket alive with exponential backoff until
// the symbol loses its last subscriber.
func (s *Stream) runTradeLoop(ctx context.Context, symbol string) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		doneC, stopC, err := gobinance.WsAggTradeServe(symbol,
			func(event *gobinance.WsAggTradeEvent) { s.dispatch(symbol, event) },
			func(err error) {
				if err != nil {
					logger.Warnf("Binance: stream error symbol=%s err=%v", symbol, err)
				}
			})
		if err != nil {
			logger.Warnf("Binance: stream connect failed symbol=%s err=%v", symbol, err)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		logger.Debugf("Binance: stream connected symbol=%s", symbol)

		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		logger.Warnf("Binance: stream disconnected symbol=%s, reconnecting", symbol)
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
