package consts

const (
	DefaultPageSize = 20
	MaxGroupInvite  = 200
)

const (
	DeadLetterCollection = "im_event_dead_letter"
)
