package token

// Artifact names carried on the transport. The session id stays readable by
// the client for introspection; the bearer and refresh values are HttpOnly.
const (
	ArtifactSessionID    = "session_id"
	ArtifactAccessToken  = "access_token"
	ArtifactRefreshToken = "refresh_token"
)

// Carrier binds session artifacts to the caller's transport (cookies in the
// HTTP layer, a plain map in tests). Implementations must treat Set as
// replace-on-write.
type Carrier interface {
	Get(name string) string
	Set(name, value string, httpOnly bool)
	Clear(name string)
}

// ClearArtifacts removes all three session artifacts from the carrier.
func ClearArtifacts(c Carrier) {
	c.Clear(ArtifactSessionID)
	c.Clear(ArtifactAccessToken)
	c.Clear(ArtifactRefreshToken)
}
