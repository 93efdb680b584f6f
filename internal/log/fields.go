package log

// Common field names for structured logging.
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldClientIP       = "client_ip"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
	FieldUserID         = "user_id"
	FieldCycleID        = "cycle_id"
	FieldSubscriptionID = "subscription_id"
	FieldFrequency      = "frequency"
	FieldPeriod         = "period"
	FieldReportStatus   = "status"
	FieldAmountCents    = "amount_cents"
	FieldCategory       = "category"
)

// Components defines standard component names.
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentMailer  = "mailer"
	ComponentReport  = "report"
)
