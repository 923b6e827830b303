package contextKey

// key is unexported so no other package can collide with these values.
type key string

const (
	// UserIDKey holds the authenticated user id (string).
	UserIDKey key = "userID"
	// JwtErrorKey holds the error raised while validating the bearer token.
	JwtErrorKey key = "jwtError"
)
