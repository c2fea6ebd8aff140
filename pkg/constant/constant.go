package constants

// gin context keys
const (
	UserField        = "user_id"
	RoleField        = "user_role"
	IdempotencyField = "idempotency_key"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Relay groups and events
const (
	AdminRoom         = "admin-room"
	EventNewAlert     = "new-alert"
	EventAlertUpdated = "alert-updated"
)

const IdempotencyHeader = "Idempotency-Key"
