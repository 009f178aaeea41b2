package power

import (
	"os"
	"os/user"
)

// detectActor identifies who runs the command as username@hostname, for the
// audit field of log entries. Unknown parts are left out.
func detectActor() string {
	hostname, _ := os.Hostname()

	var username string
	if current, err := user.Current(); err == nil {
		username = current.Username
	}

	switch {
	case username != "" && hostname != "":
		return username + "@" + hostname
	case username != "":
		return username
	default:
		return hostname
	}
}
