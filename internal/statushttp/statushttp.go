// Copyright (C) 2024 The nightrail authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package statushttp is the optional "Window-like sink" the external
// interface section calls for (§6): a status.Observer that fans each
// pushed event out to every subscribed HTTP client over Server-Sent
// Events. The gin.New/gin.Use(gin.Logger())/gin.Use(gin.Recovery())/
// static.Serve setup is the teacher's own cmdserve.go; the subscribe/
// unsubscribe channel-map pattern for SSE fan-out is grounded on
// _examples/banshee-data-velocity.report's serialmux package, which
// multiplexes one source of line events out to many "tail" subscribers
// the same way this multiplexes one status.Observer out to many clients.
package statushttp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/contrib/static"
	"github.com/gin-gonic/gin"
)

// Hub is a status.Observer that broadcasts every Emit call to all
// currently subscribed clients. It never blocks on a slow subscriber: a
// client whose buffer is full simply misses that event, the way periodic
// counter snapshots are safe to drop (the next tick supersedes it).
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan sseEvent
}

type sseEvent struct {
	name    string
	payload []byte
}

// NewHub constructs an empty Hub ready to be passed as a status.Observer
// and served over HTTP by the gin.Engine that NewEngine builds.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan sseEvent)}
}

// Emit implements status.Observer by fanning the event out to every
// subscriber's buffered channel.
func (h *Hub) Emit(event string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- sseEvent{name: event, payload: payload}:
		default:
		}
	}
}

// Subscribe registers a new client channel and returns its id (for
// Unsubscribe) and the channel itself.
func (h *Hub) Subscribe() (string, chan sseEvent) {
	id := randomID()
	ch := make(chan sseEvent, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a client's channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// SubscriberCount reports how many clients are currently attached, mainly
// for tests.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewEngine builds the gin.Engine that serves the status stream and the
// static frontend, the same middleware stack cmdserve.go wires up
// (Logger, Recovery, static.Serve from ./web/build) plus one SSE route.
func NewEngine(hub *Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(static.Serve("/", static.LocalFile("./web/build", true)))

	r.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/api/v1/events", func(c *gin.Context) { streamEvents(c, hub) })

	return r
}

// streamEvents handles one SSE client: subscribe, write a comment ping to
// establish the connection, then relay events until the client
// disconnects, mirroring serialmux's "tail" handler.
func streamEvents(c *gin.Context, hub *Hub) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	id, ch := hub.Subscribe()
	defer hub.Unsubscribe(id)

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.payload)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the HTTP server, blocking until it exits (matching the
// teacher's CmdServe, which also runs r.Run directly rather than
// returning a *http.Server for the caller to manage).
func Run(port int, hub *Hub) error {
	return NewEngine(hub).Run(fmt.Sprintf(":%d", port))
}
