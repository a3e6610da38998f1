package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/w3bucket/bucket-provider/internal/events"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

// feed pushes every domain event to subscribed websocket clients as a JSON
// frame. Dead connections are dropped on the first failed write.
type feed struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	conns map[*websocket.Conn]struct{}
	mx    sync.Mutex
}

type frame struct {
	Type  string `json:"type"`
	Event any    `json:"event"`
}

func newFeed(logger zerolog.Logger) *feed {
	return &feed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		conns:  map[*websocket.Conn]struct{}{},
	}
}

func (f *feed) attach(bus *ebus.Bus) {
	ebus.Subscribe(bus, func(ev events.UnitPriceUpdated) { f.broadcast("UnitPriceUpdated", ev) })
	ebus.Subscribe(bus, func(ev events.BucketMinted) { f.broadcast("BucketMinted", ev) })
	ebus.Subscribe(bus, func(ev events.PermanentURI) { f.broadcast("PermanentURI", ev) })
	ebus.Subscribe(bus, func(ev events.BucketRenewed) { f.broadcast("BucketRenewed", ev) })
	ebus.Subscribe(bus, func(ev events.Withdraw) { f.broadcast("Withdraw", ev) })
}

func (f *feed) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug().Err(err).Msg("failed to upgrade events subscriber")
		return
	}

	f.mx.Lock()
	f.conns[conn] = struct{}{}
	f.mx.Unlock()

	f.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("events subscriber connected")

	// drain incoming frames to notice the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.drop(conn)
				return
			}
		}
	}()
}

func (f *feed) broadcast(typ string, ev any) {
	data, err := json.Marshal(frame{Type: typ, Event: ev})
	if err != nil {
		f.logger.Error().Err(err).Str("type", typ).Msg("failed to encode event frame")
		return
	}

	f.mx.Lock()
	defer f.mx.Unlock()

	for conn := range f.conns {
		if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dropping events subscriber")
			_ = conn.Close()
			delete(f.conns, conn)
		}
	}
}

func (f *feed) drop(conn *websocket.Conn) {
	f.mx.Lock()
	defer f.mx.Unlock()
	_ = conn.Close()
	delete(f.conns, conn)
}
