package observability

// Domain event names published after successful writes.
const (
	EventChatCreated     = "chat_created"
	EventMessageSent     = "message_sent"
	EventMessageDeleted  = "message_deleted"
	EventUserBanned      = "user_banned"
	EventPasswordReset   = "password_reset_requested"
	EventAppealFiled     = "appeal_filed"
	EventAppealResolved  = "appeal_resolved"
	PasswordResetRouting = "auth.password_reset"
)

type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// PasswordResetRequest asks the identity provider to email a reset link.
type PasswordResetRequest struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	RequestedBy string `json:"requested_by"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
