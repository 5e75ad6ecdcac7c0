package apperrors

// Stable machine codes shared between the scan engine, the generation
// pipeline and the HTTP surface.
const (
	CodeTicketNotFound      = "TICKET_NOT_FOUND"
	CodeEventNotFound       = "EVENT_NOT_FOUND"
	CodeTicketAlreadyUsed   = "TICKET_ALREADY_USED"
	CodeEventNotActive      = "EVENT_NOT_ACTIVE"
	CodeEventEnded          = "EVENT_ENDED"
	CodeEventFull           = "EVENT_FULL"
	CodeInvalidQRFormat     = "INVALID_QR_FORMAT"
	CodeQRTicketMismatch    = "QR_TICKET_MISMATCH"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeQueueError          = "QUEUE_ERROR"
	CodeNoEnrichableTickets = "NO_ENRICHABLE_TICKETS"
	CodeInvalidEnrichedData = "INVALID_ENRICHED_DATA"
	CodeInvalidReference    = "INVALID_REFERENCE"
	CodeDuplicate           = "DUPLICATE"
	CodeInvalidTransition   = "INVALID_TRANSITION"
)
