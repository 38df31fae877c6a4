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

package statushttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHubEmitDeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	_, ch := hub.Subscribe()

	hub.Emit("processing_state_change", []byte(`{"loaded":1}`))

	select {
	case ev := <-ch:
		require.Equal(t, "processing_state_change", ev.name)
		require.JSONEq(t, `{"loaded":1}`, string(ev.payload))
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the emitted event")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	id, ch := hub.Subscribe()
	hub.Unsubscribe(id)

	_, open := <-ch
	require.False(t, open)
	require.Equal(t, 0, hub.SubscriberCount())
}

func TestHubEmitNeverBlocksOnFullSubscriber(t *testing.T) {
	hub := NewHub()
	hub.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			hub.Emit("processing_state_change", []byte("{}"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber buffer")
	}
}

func TestNewEnginePingRoute(t *testing.T) {
	engine := NewEngine(NewHub())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pong")
}

func TestStreamEventsRelaysEmittedEvent(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	ctx, cancel := context.WithCancel(context.Background())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		streamEvents(c, hub)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	hub.Emit("processing_state_change", []byte(`{"loaded":1}`))

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "event: processing_state_change")
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("streamEvents did not return after context cancellation")
	}
	require.Equal(t, 0, hub.SubscriberCount())
}
