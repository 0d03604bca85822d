package session

import (
	"fmt"
	"os"

	"github.com/matheus3301/admiral/internal/config"
)

const DefaultSessionName = "main"

// EnvSession names the session when no flag is given.
const EnvSession = "ADMIRAL_SESSION"

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. $ADMIRAL_SESSION
// 3. config.toml default_session
// 4. "main"
//
// An invalid name is reported together with the place it came from.
func Resolve(flagOverride string) (string, error) {
	name, source := resolve(flagOverride)
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("%s: %w", source, err)
	}
	return name, nil
}

func resolve(flagOverride string) (name, source string) {
	if flagOverride != "" {
		return flagOverride, "--session flag"
	}
	if v := os.Getenv(EnvSession); v != "" {
		return v, "$" + EnvSession
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession, "default_session in " + ConfigPath()
	}
	return DefaultSessionName, "default session"
}
