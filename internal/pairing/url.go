package pairing

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/hilthontt/remotepad/internal/domain"
)

// BuildURL renders the link a phone opens to join code. The server is
// implicit when it is the default one.
func BuildURL(clientBase, serverURL, defaultServer, code string) string {
	base := strings.TrimSuffix(clientBase, "/")
	if serverURL == "" || sameServer(serverURL, defaultServer) {
		return base + "/" + url.PathEscape(code)
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "server=" + url.QueryEscape(serverURL) + "&room=" + url.QueryEscape(code)
}

// ParsePairingURL is the inverse of BuildURL. An empty server means the
// default one.
func ParsePairingURL(raw string) (server, code string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPairingURL, err)
	}

	q := u.Query()
	if room := q.Get("room"); room != "" {
		code = room
		server = q.Get("server")
	} else {
		code = path.Base(u.Path)
	}

	code = domain.NormalizeCode(code)
	if !domain.ValidCode(code) {
		return "", "", fmt.Errorf("%w: no room code in %q", ErrInvalidPairingURL, raw)
	}
	return server, code, nil
}

func sameServer(a, b string) bool {
	norm := func(s string) string {
		return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "/"))
	}
	return b != "" && norm(a) == norm(b)
}
