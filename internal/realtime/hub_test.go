package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventWarningSignal, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventWarningSignal},
	}}

	warningEvent := &Event{Type: EventWarningSignal}
	profileEvent := &Event{Type: EventRiskProfile}

	if !h.shouldSend(client, warningEvent) {
		t.Error("Should receive warning_signal events")
	}
	if h.shouldSend(client, profileEvent) {
		t.Error("Should NOT receive risk_profile events")
	}
}

func TestShouldSend_TenantFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		TenantIDs: []string{"t1"},
	}}

	matching := &Event{
		Type: EventWarningSignal,
		Data: map[string]interface{}{"tenantId": "t1", "opportunityId": "opp1"},
	}
	notMatching := &Event{
		Type: EventWarningSignal,
		Data: map[string]interface{}{"tenantId": "t2", "opportunityId": "opp2"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on tenant id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other tenants")
	}
}

func TestShouldSend_OpportunityFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		OpportunityIDs: []string{"opp1"},
	}}

	matching := &Event{
		Type: EventWarningSignal,
		Data: map[string]interface{}{"opportunityId": "opp1"},
	}
	notMatching := &Event{
		Type: EventWarningSignal,
		Data: map[string]interface{}{"opportunityId": "opp2"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match the watched opportunity")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other opportunities")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinScore: 0.5,
	}}

	risky := &Event{
		Type: EventRiskProfile,
		Data: map[string]interface{}{"aggregateScore": 0.7},
	}
	calm := &Event{
		Type: EventRiskProfile,
		Data: map[string]interface{}{"aggregateScore": 0.2},
	}
	warning := &Event{
		Type: EventWarningSignal,
		Data: map[string]interface{}{"kind": "stage_stagnation"},
	}

	if !h.shouldSend(client, risky) {
		t.Error("Should receive high-score profile")
	}
	if h.shouldSend(client, calm) {
		t.Error("Should NOT receive low-score profile")
	}
	if !h.shouldSend(client, warning) {
		t.Error("MinScore filter should only apply to profile events")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventWarningSignal}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		OpportunityIDs: []string{"opp1"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventWarningSignal,
		Data: "string data not a map",
	}

	// Opportunity filter can't extract an id from non-map data, so the
	// event is filtered out rather than crashing.
	if h.shouldSend(client, event) {
		t.Error("Non-map data should not match an opportunity filter")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventWarningSignal, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastWarningSignal(map[string]interface{}{
		"opportunityId": "opp1", "kind": "activity_drop",
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants profile events
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventRiskProfile}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a warning event (should be filtered out)
	h.Broadcast(&Event{Type: EventWarningSignal, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive warning event")
	default:
		// Good - filtered out
	}

	// Send a profile event (should be received)
	h.Broadcast(&Event{Type: EventRiskProfile, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive profile event")
	}
}
