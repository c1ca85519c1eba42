package workflow

import "testing"

func TestSessionTransitions(t *testing.T) {
	if !CanTransitionSession(SessionStatusOnline, SessionStatusOffline) {
		t.Fatalf("expected online -> offline to be allowed")
	}
	if CanTransitionSession(SessionStatusOffline, SessionStatusOnline) {
		t.Fatalf("expected offline -> online to be blocked")
	}
	if CanTransitionSession(SessionStatusOffline, SessionStatusOffline) {
		t.Fatalf("expected offline -> offline to be blocked")
	}
}

func TestDeliveryTransitions(t *testing.T) {
	if !CanTransitionDelivery(DeliveryStatusDelivered, DeliveryStatusReturned) {
		t.Fatalf("expected delivered -> returned to be allowed")
	}
	for _, from := range []string{DeliveryStatusPending, DeliveryStatusReturned, DeliveryStatusNotReceived} {
		if CanTransitionDelivery(from, DeliveryStatusReturned) {
			t.Fatalf("expected %s -> returned to be blocked", from)
		}
	}
	if CanTransitionDelivery(DeliveryStatusReturned, DeliveryStatusDelivered) {
		t.Fatalf("expected returned -> delivered to be blocked")
	}
}

func TestEventForTransition(t *testing.T) {
	if ev := SessionEventForTransition("Online", "Offline"); ev != SessionEventFinished {
		t.Fatalf("unexpected event: %q", ev)
	}
	if ev := DeliveryEventForTransition(DeliveryStatusDelivered, DeliveryStatusReturned); ev != DeliveryEventReturned {
		t.Fatalf("unexpected event: %q", ev)
	}
	if ev := DeliveryEventForTransition(DeliveryStatusReturned, DeliveryStatusDelivered); ev != "" {
		t.Fatalf("expected no event for reversed edge, got %q", ev)
	}
}
