package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobReserved    = "job.reserved"
	ActionJobCompleted   = "job.completed"
	ActionJobFailed      = "job.failed"
	ActionJobRemoved     = "job.removed"
	ActionSessionCreated = "session.created"
	ActionSessionRotated = "session.rotated"
	ActionSessionDeleted = "session.deleted"
)

// Audit event categories group related actions.
const (
	CategoryJob     = "rvoc.job"
	CategorySession = "rvoc.session"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob     = "job"
	ResourceSession = "session"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobReserved,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobRemoved,
		ActionSessionCreated,
		ActionSessionRotated,
		ActionSessionDeleted,
	}
}
