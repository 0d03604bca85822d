package session

import (
	"fmt"
	"regexp"
)

// maxSocketPath is the sun_path limit on macOS, the tighter of the platforms
// admirald runs on.
const maxSocketPath = 104

var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that name can identify a session. Names are lowercase
// and must leave the session's daemon socket path within the Unix socket
// address limit under the current base directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: use up to 64 lowercase letters, digits, '-' or '_', starting with a letter or digit", name)
	}
	if p := SocketPath(name); len(p) >= maxSocketPath {
		return fmt.Errorf("session name %q is too long for %s: socket path would be %d bytes, limit is %d",
			name, BaseDir(), len(p), maxSocketPath-1)
	}
	return nil
}
