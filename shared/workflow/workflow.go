package workflow

import "strings"

const (
	SessionStatusOnline  = "online"
	SessionStatusOffline = "offline"
)

const (
	SessionEventStarted  = "patrol_session_started"
	SessionEventEvidence = "patrol_evidence_added"
	SessionEventFinished = "patrol_session_finished"
)

const (
	DeliveryStatusDelivered   = "delivered"
	DeliveryStatusPending     = "pending"
	DeliveryStatusReturned    = "returned"
	DeliveryStatusNotReceived = "not_received"
)

const (
	DeliveryEventCommitted = "delivery_committed"
	DeliveryEventReturned  = "delivery_returned"
)

// Both machines are one-way: a finished session and a returned delivery
// are terminal.
var sessionTransitions = map[string]map[string]string{
	SessionStatusOnline: {
		SessionStatusOffline: SessionEventFinished,
	},
}

var deliveryTransitions = map[string]map[string]string{
	DeliveryStatusDelivered: {
		DeliveryStatusReturned: DeliveryEventReturned,
	},
}

func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func CanTransitionSession(fromStatus string, toStatus string) bool {
	return lookup(sessionTransitions, fromStatus, toStatus) != ""
}

func CanTransitionDelivery(fromStatus string, toStatus string) bool {
	return lookup(deliveryTransitions, fromStatus, toStatus) != ""
}

func SessionEventForTransition(fromStatus string, toStatus string) string {
	return lookup(sessionTransitions, fromStatus, toStatus)
}

func DeliveryEventForTransition(fromStatus string, toStatus string) string {
	return lookup(deliveryTransitions, fromStatus, toStatus)
}

func AllSessionStatuses() []string {
	return []string{SessionStatusOnline, SessionStatusOffline}
}

func AllDeliveryStatuses() []string {
	return []string{
		DeliveryStatusDelivered,
		DeliveryStatusPending,
		DeliveryStatusReturned,
		DeliveryStatusNotReceived,
	}
}

func lookup(transitions map[string]map[string]string, fromStatus string, toStatus string) string {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	next := transitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}
