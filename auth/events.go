package auth

// The closed set of events this subsystem publishes. Payloads are typed
// structs so subscribers are checked at compile time rather than matching
// on strings.

// LoginComplete fires after a successful login or registration, once the
// token and identity have been written.
type LoginComplete struct {
	Identity Identity
}

func (LoginComplete) EventName() string { return "login_complete" }

// LogoutComplete fires after local logout has cleared token and identity.
type LogoutComplete struct{}

func (LogoutComplete) EventName() string { return "logout_complete" }

// SessionExpired fires exactly once when the scheduler transitions an
// active session to expired.
type SessionExpired struct{}

func (SessionExpired) EventName() string { return "session_expired" }

// SuperuserStatusChanged fires when the resolved elevated-access flag
// changes value.
type SuperuserStatusChanged struct {
	IsElevated bool
}

func (SuperuserStatusChanged) EventName() string { return "superuser_status_changed" }

// NetworkOnline surfaces the host environment's online signal.
type NetworkOnline struct{}

func (NetworkOnline) EventName() string { return "online" }

// NetworkOffline surfaces the host environment's offline signal.
type NetworkOffline struct{}

func (NetworkOffline) EventName() string { return "offline" }
