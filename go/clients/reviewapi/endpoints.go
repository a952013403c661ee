package reviewapi

const (
	// Base URL of a local backend
	DefaultBaseURL = "http://localhost:8080"

	// Users
	LoginEndpoint    = "/users/login"
	RegisterEndpoint = "/users/register"

	// Review sessions
	SessionsEndpoint     = "/review-sessions"
	JoinSessionEndpoint  = "/review-sessions/join"
	LeaveSessionEndpoint = "/review-sessions/leave"
	EndSessionEndpoint   = "/review-sessions/end"
	sessionByIDEndpoint  = "/review-sessions/%s"
	activeByTeamEndpoint = "/review-sessions/team/%s/active"
)
