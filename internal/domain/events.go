package domain

// Event types published to downstream collaborators.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCheckedIn = "booking.checked_in"
	EventFlightCancelled  = "flight.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)
