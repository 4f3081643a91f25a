package redis

import (
	"strconv"

	"github.com/xraph/rvoc/session"
)

// Redis key naming conventions. All keys are prefixed with "rvoc:" to
// avoid collisions.

const keyPrefix = "rvoc:"

// generationKey holds the session cache generation counter.
const generationKey = keyPrefix + "session_gen"

// sessionKey returns the key for a cached session:
// rvoc:session:{generation}:{id}
func sessionKey(gen int64, id session.ID) string {
	return keyPrefix + "session:" + strconv.FormatInt(gen, 10) + ":" + id.String()
}
