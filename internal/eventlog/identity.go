package eventlog

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// PublicImagePrefix is the URL path under which processed snapshots are
// served.
const PublicImagePrefix = "/images"

// TimestampLayout is the ISO-8601 form every persisted timestamp uses.
// Same-format strings sort lexicographically in chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// FormatTimestamp renders t in the persisted timestamp form.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a persisted or client-supplied ISO-8601 timestamp.
// Offset-less forms are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Normalize fills the derived and defaulted fields of an event read from
// storage so old and new records share one shape: event_id when absent,
// image URLs from path basenames, and zero-valued audit fields (already the
// struct defaults).
func Normalize(ev model.ChangeEvent) model.ChangeEvent {
	if ev.EventID == "" {
		ev.EventID = StableEventID(ev)
	}
	ev.Before.ImageURL = imageURL(ev.Before.ImagePath)
	ev.After.ImageURL = imageURL(ev.After.ImagePath)
	return ev
}

// ImageURL maps a local image path to its public URL, nil when absent.
func ImageURL(path *string) *string { return imageURL(path) }

func imageURL(path *string) *string {
	if path == nil || *path == "" {
		return nil
	}
	u := PublicImagePrefix + "/" + filepath.Base(*path)
	return &u
}

// StableEventID derives the content-addressed identifier from the immutable
// fields only, so the id survives every audit mutation: box id plus the
// before/after count, timestamp and image basename.
func StableEventID(ev model.ChangeEvent) string {
	sig := map[string]any{
		"box_id": ev.BoxID,
		"before": snapshotSignature(ev.Before),
		"after":  snapshotSignature(ev.After),
	}
	return hashObject(sig)
}

// LegacyEventID hashes the entire raw record as stored. Kept only so events
// persisted before the stable scheme remain addressable; new writes never
// rely on it.
func LegacyEventID(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	return hashObject(v)
}

func snapshotSignature(s model.Snapshot) map[string]any {
	var ts any
	if s.Timestamp != "" {
		ts = s.Timestamp
	}
	var img any
	if s.ImagePath != nil && *s.ImagePath != "" {
		img = filepath.Base(*s.ImagePath)
	}
	return map[string]any{
		"count":     s.Count,
		"timestamp": ts,
		"image":     img,
	}
}

// hashObject is sha1 over the canonical JSON encoding, truncated to 24 hex
// characters. Canonical form: keys sorted, ", " and ": " separators, no
// ASCII escaping. This must stay byte-compatible with the ids already on
// disk.
func hashObject(v any) string {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	sum := sha1.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:])[:24]
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeCanonicalString(buf, x)
	case int:
		buf.WriteString(strconv.Itoa(x))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case json.Number:
		buf.WriteString(x.String())
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			buf.WriteString(strconv.FormatInt(int64(x), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		}
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeCanonicalString(buf, k)
			buf.WriteString(": ")
			writeCanonical(buf, x[k])
		}
		buf.WriteByte('}')
	default:
		// Structs and anything else round-trip through encoding/json first.
		b, err := json.Marshal(x)
		if err != nil {
			return
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return
		}
		writeCanonical(buf, generic)
	}
}

// writeCanonicalString emits a JSON string without HTML escaping, matching
// the encoder that produced the historical ids.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
