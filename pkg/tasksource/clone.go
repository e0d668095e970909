package tasksource

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultRef is checked out when the clone command names no commit.
const DefaultRef = "main"

// ErrMalformedClone is returned when a clone command has no repository URL.
var ErrMalformedClone = errors.New("malformed clone command")

// ParseCloneCommand extracts the repository URL and commit reference from a
// combined command such as
//
//	git clone https://github.com/org/repo.git && cd repo && git checkout abc123
//
// The URL is the third token of the first segment; the ref is the last token
// of the last segment when there is more than one segment.
func ParseCloneCommand(cmd string) (repoURL, ref string, err error) {
	parts := strings.Split(cmd, "&&")

	clone := strings.Fields(parts[0])
	if len(clone) < 3 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedClone, cmd)
	}
	repoURL = clone[2]

	ref = DefaultRef
	if len(parts) > 1 {
		if checkout := strings.Fields(parts[len(parts)-1]); len(checkout) > 0 {
			ref = checkout[len(checkout)-1]
		}
	}
	return repoURL, ref, nil
}
