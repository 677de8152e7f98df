package models

// TokenKind names one of the credentials held by the client token store.
type TokenKind string

const (
	// SessionToken is the backend-issued JWT sent as the bearer credential.
	SessionToken TokenKind = "session_token"
	// AccessToken is the Spotify access token handed out by the backend.
	AccessToken TokenKind = "access_token"
	// AccessTokenExpiry is the access token's expiry, epoch seconds as a decimal string.
	AccessTokenExpiry TokenKind = "access_token_expires_at"
)

// TokenKinds lists every kind in a stable order.
func TokenKinds() []TokenKind {
	return []TokenKind{SessionToken, AccessToken, AccessTokenExpiry}
}

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	switch k {
	case SessionToken, AccessToken, AccessTokenExpiry:
		return true
	}
	return false
}

func (k TokenKind) String() string { return string(k) }
