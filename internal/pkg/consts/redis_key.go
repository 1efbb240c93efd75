package consts

const (
	IMUserKey          = "im:user:"
	IMUserProfileKey   = "im:profile:"
	IMUnreadReconcile  = "im:job:unread_reconcile"
	IMRedeliverJobLock = "im:job:redeliver"
	JWTBlacklistKey    = "jwt:blacklist:"
)
