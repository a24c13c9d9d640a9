package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// Basic holds basic authentication credentials. The username doubles as the user ID.
type Basic struct {
	Username string
	Password string
}

// Authenticate checks basic auth credentials
func (b Basic) Authenticate(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return "", false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return "", false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(b.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(b.Password)) == 1
	if !userOK || !passOK {
		return "", false
	}
	return b.Username, true
}
