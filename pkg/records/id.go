package records

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ID grammars. Record IDs are "{unixSeconds}-{kind}-{slug}"; actor IDs are
// "{human|agent}:{slug}" with an optional "-v{N}" rotation suffix.
var (
	recordIDPattern = regexp.MustCompile(`^[0-9]{10,}-(task|cycle|feedback|exec|changelog)-[a-z0-9-]+$`)
	actorIDPattern  = regexp.MustCompile(`^(human|agent):[a-z0-9-]+(-v[0-9]+)?$`)

	actorVersionPattern = regexp.MustCompile(`^(.*)-v([0-9]+)$`)
)

// Kind segments used inside record IDs. Note the execution kind abbreviates
// to "exec" on the wire.
const (
	KindTask      = "task"
	KindCycle     = "cycle"
	KindFeedback  = "feedback"
	KindExec      = "exec"
	KindChangelog = "changelog"
)

var slugStrip = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowers s to the hyphen-only slug alphabet, folding diacritics so
// "Número Uno" and "Numero Uno" produce the same ID.
func Slugify(s string) string {
	folded, _, err := transform.String(slugStrip, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// GenerateID builds a record ID from a kind segment, a title (slugified),
// and a timestamp.
func GenerateID(kind, title string, ts time.Time) string {
	return fmt.Sprintf("%d-%s-%s", ts.Unix(), kind, Slugify(title))
}

// ValidRecordID reports whether id matches the record ID grammar.
func ValidRecordID(id string) bool {
	return recordIDPattern.MatchString(id)
}

// ValidActorID reports whether id matches the actor/agent ID grammar.
func ValidActorID(id string) bool {
	return actorIDPattern.MatchString(id)
}

// RecordIDKind extracts the kind segment of a record ID, or "" when the ID
// does not match the grammar.
func RecordIDKind(id string) string {
	m := recordIDPattern.FindStringSubmatch(id)
	if m == nil {
		return ""
	}
	return m[1]
}

// ActorIDVersion splits an actor ID into its base and rotation version.
// "human:alice" yields ("human:alice", 1); "human:alice-v3" yields
// ("human:alice", 3).
func ActorIDVersion(id string) (base string, version int) {
	m := actorVersionPattern.FindStringSubmatch(id)
	if m == nil {
		return id, 1
	}
	var v int
	fmt.Sscanf(m[2], "%d", &v)
	return m[1], v
}

// NextActorID returns the successor ID for a key rotation: the base ID with
// the version suffix incremented.
func NextActorID(id string) string {
	base, version := ActorIDVersion(id)
	return fmt.Sprintf("%s-v%d", base, version+1)
}
