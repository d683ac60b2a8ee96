// Package websocket streams market-channel book events over a single
// reconnecting connection.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Manager manages a single WebSocket connection to the market channel.
type Manager struct {
	url          string
	config       Config
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	events       chan *types.MarketEvent
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex

	connected       atomic.Bool
	lastMessage     atomic.Int64 // unix nanos
	connectionStart atomic.Int64 // unix nanos
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL         string
	DialTimeout time.Duration
	// PongTimeout is how long the connection may stay silent before it is
	// treated as dead and replaced.
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
	Now                   func() time.Time
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Manager{
		url:          cfg.URL,
		config:       cfg,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		events:       make(chan *types.MarketEvent, cfg.MessageBufferSize),
		now:          cfg.Now,
		ctx:          ctx,
		cancel:       cancel,
		subscribed:   make(map[string]bool),
	}
}

// Start dials the server and starts the read and ping loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	if err := m.connect(m.ctx); err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(2)
	go m.run()
	go m.pingLoop()

	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: m.config.DialTimeout}

	m.logger.Info("connecting-to-websocket", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.extendDeadline(conn)
		return nil
	})
	m.extendDeadline(conn)

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := m.now()
	m.connected.Store(true)
	m.lastMessage.Store(now.UnixNano())
	m.connectionStart.Store(now.UnixNano())
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

func (m *Manager) extendDeadline(conn *websocket.Conn) {
	if m.config.PongTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(m.config.PongTimeout))
	}
}

// run reads until the connection drops, then reconnects and resubscribes.
func (m *Manager) run() {
	defer m.wg.Done()

	for {
		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		err := m.readLoop(conn)
		m.markDisconnected()
		_ = conn.Close()

		if m.ctx.Err() != nil {
			return
		}
		m.logger.Warn("connection-lost-initiating-reconnect", zap.Error(err))

		if err := m.reconnectMgr.Reconnect(m.ctx, m.connect); err != nil {
			return
		}
		if m.ctx.Err() != nil {
			m.closeConn()
			return
		}

		if err := m.resubscribeAll(); err != nil {
			// the next read fails on the broken connection and we land here again
			m.logger.Error("resubscribe-failed", zap.Error(err))
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		received := m.now()
		m.lastMessage.Store(received.UnixNano())
		m.extendDeadline(conn)

		events, err := Decode(frame, received)
		if err != nil {
			DecodeErrorsTotal.Inc()
			m.logger.Debug("websocket-unparseable-message",
				zap.Error(err),
				zap.Int("bytes", len(frame)))
		}

		for _, event := range events {
			MessagesReceivedTotal.WithLabelValues(event.EventType()).Inc()

			// Book state is built from deltas, so events are never dropped.
			select {
			case m.events <- event:
			case <-m.ctx.Done():
				return m.ctx.Err()
			}
			DeliveryLatencySeconds.Observe(m.now().Sub(received).Seconds())
		}
	}
}

func (m *Manager) markDisconnected() {
	if !m.connected.Swap(false) {
		return
	}

	if start := m.connectionStart.Load(); start > 0 {
		ConnectionDuration.Observe(m.now().Sub(time.Unix(0, start)).Seconds())
	}
	ActiveConnections.Set(0)
}

func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// Subscribe adds tokens to the subscription. Tokens already subscribed are
// ignored. The first subscription on a connection uses the initial message
// form; later ones use the dynamic form.
func (m *Manager) Subscribe(_ context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()
	newTokens := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if !m.subscribed[tokenID] {
			newTokens = append(newTokens, tokenID)
			m.subscribed[tokenID] = true
		}
	}

	if len(newTokens) == 0 {
		m.mu.Unlock()
		m.logger.Debug("all-tokens-already-subscribed")
		return nil
	}

	var msg map[string]interface{}
	if len(m.subscribed) == len(newTokens) {
		msg = map[string]interface{}{"assets_ids": newTokens, "type": "market"}
	} else {
		msg = map[string]interface{}{"assets_ids": newTokens, "operation": "subscribe"}
	}
	total := len(m.subscribed)
	m.mu.Unlock()

	if err := m.write(msg); err != nil {
		m.mu.Lock()
		for _, tokenID := range newTokens {
			delete(m.subscribed, tokenID)
		}
		total = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("write subscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(total))
	m.logger.Info("subscribed-to-tokens",
		zap.Int("new-count", len(newTokens)),
		zap.Int("total-count", total))

	return nil
}

// Unsubscribe removes tokens from the subscription.
func (m *Manager) Unsubscribe(_ context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()
	removed := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if m.subscribed[tokenID] {
			removed = append(removed, tokenID)
			delete(m.subscribed, tokenID)
		}
	}

	if len(removed) == 0 {
		m.mu.Unlock()
		m.logger.Debug("no-tokens-to-unsubscribe")
		return nil
	}
	total := len(m.subscribed)
	m.mu.Unlock()

	msg := map[string]interface{}{"assets_ids": removed, "operation": "unsubscribe"}
	if err := m.write(msg); err != nil {
		m.mu.Lock()
		for _, tokenID := range removed {
			m.subscribed[tokenID] = true
		}
		total = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(total))
	UnsubscriptionsTotal.Inc()

	m.logger.Info("unsubscribed-from-tokens",
		zap.Int("count", len(removed)),
		zap.Int("remaining-count", total))

	return nil
}

func (m *Manager) resubscribeAll() error {
	m.mu.RLock()
	tokenIDs := make([]string, 0, len(m.subscribed))
	for tokenID := range m.subscribed {
		tokenIDs = append(tokenIDs, tokenID)
	}
	m.mu.RUnlock()

	if len(tokenIDs) == 0 {
		return nil
	}

	if err := m.write(map[string]interface{}{"assets_ids": tokenIDs, "type": "market"}); err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	m.logger.Info("resubscribed-to-all-tokens", zap.Int("count", len(tokenIDs)))

	return nil
}

func (m *Manager) write(msg interface{}) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	return conn.WriteJSON(msg)
}

func (m *Manager) closeConn() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// MessageChan returns the channel of decoded market events. It is closed by Close.
func (m *Manager) MessageChan() <-chan *types.MarketEvent {
	return m.events
}

// Connected reports whether the connection is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// LastMessageAt returns the receive time of the most recent frame.
func (m *Manager) LastMessageAt() time.Time {
	return time.Unix(0, m.lastMessage.Load())
}

// Close stops the loops, closes the connection and the event channel.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.closeConn()
	m.wg.Wait()

	close(m.events)
	ActiveConnections.Set(0)

	m.logger.Info("websocket-manager-closed")

	return nil
}
