package gerrit

// JSON keys used by Gerrit event payloads.
const (
	KeyType           = "type"
	KeyEventCreatedOn = "eventCreatedOn"
	KeyRefUpdate      = "refUpdate"
	KeySubmitter      = "submitter"

	KeyProject = "project"
	KeyRefName = "refName"
	KeyOldRev  = "oldRev"
	KeyNewRev  = "newRev"

	KeyName     = "name"
	KeyEmail    = "email"
	KeyUsername = "username"
)

// Event types.
const (
	EventTypeRefUpdated = "ref-updated"
)
