package provision

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agenthands/micromatch/internal/core/model"
)

const maxRoomNameLen = 80

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]`)
	dashRuns         = regexp.MustCompile(`-+`)
)

// Sanitize maps a name onto the transport's channel-name alphabet:
// lowercase a-z, 0-9 and single dashes, at most 80 characters.
func Sanitize(name string) string {
	s := strings.ToLower(name)
	s = invalidNameChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxRoomNameLen {
		s = strings.TrimRight(s[:maxRoomNameLen], "-")
	}
	return s
}

// RoomName is micromatch-<topic>-duo|grp-<yyyymmdd>, numbered when a topic
// produced several group batches.
func RoomName(topic string, kind model.UnitKind, date time.Time, index, total int) string {
	k := "grp"
	if kind == model.KindPair {
		k = "duo"
	}
	name := fmt.Sprintf("micromatch-%s-%s-%s", topic, k, date.UTC().Format("20060102"))
	if total > 1 {
		name = fmt.Sprintf("%s-%d", name, index)
	}
	return Sanitize(name)
}

// WithSuffix appends a suffix, shortening the base so the suffix survives
// the length limit.
func WithSuffix(name, suffix string) string {
	base := Sanitize(name)
	room := maxRoomNameLen - len(suffix) - 1
	if len(base) > room {
		base = strings.TrimRight(base[:room], "-")
	}
	return Sanitize(base + "-" + suffix)
}

// randomSuffix returns four base36 characters.
func randomSuffix() string {
	n := rand.Int64N(36 * 36 * 36 * 36)
	s := strconv.FormatInt(n, 36)
	return strings.Repeat("0", 4-len(s)) + s
}
