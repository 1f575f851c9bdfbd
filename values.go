package pgmcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type requestIDKey struct{}

// WithRequestID tags ctx with a request ID that is attached to every log
// line written for the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func newRequestID() string {
	return uuid.NewString()
}

func (p *PostgresMcp) loggerFor(ctx context.Context) zerolog.Logger {
	if id := RequestID(ctx); id != "" {
		return p.logger.With().Str("request_id", id).Logger()
	}
	return p.logger
}

// orderedRows rebuilds rows as ordered maps so JSON output keeps the
// column order of the result set.
func orderedRows(columns []string, rows []map[string]any) []*orderedmap.OrderedMap[string, any] {
	out := make([]*orderedmap.OrderedMap[string, any], len(rows))
	for i, row := range rows {
		om := orderedmap.New[string, any](len(columns))
		for _, col := range columns {
			if v, ok := row[col]; ok {
				om.Set(col, v)
			}
		}
		out[i] = om
	}
	return out
}

// marshalIndent encodes v with two-space indentation and no HTML escaping.
func marshalIndent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// convertValue converts a pgx-decoded value into something encoding/json
// renders the way PostgreSQL prints it.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int16, int32, int64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return floatValue(float64(val), val)
	case float64:
		return floatValue(val, val)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Numeric:
		return numericValue(val)
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return clockString(val.Microseconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return intervalString(val)
	case pgtype.Bits:
		if !val.Valid {
			return nil
		}
		return bitString(val)
	case pgtype.Point:
		if !val.Valid {
			return nil
		}
		return pointString(val.P)
	case pgtype.Box:
		if !val.Valid {
			return nil
		}
		return pointString(val.P[0]) + "," + pointString(val.P[1])
	case pgtype.Circle:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("<%s,%g>", pointString(val.P), val.R)
	case pgtype.Range[any]:
		if !val.Valid {
			return nil
		}
		return rangeString(val)
	case map[string]any:
		for k, item := range val {
			val[k] = convertValue(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = convertValue(item)
		}
		return val
	default:
		return val
	}
}

// floatValue maps the non-finite values JSON cannot represent to the
// strings PostgreSQL uses for them.
func floatValue(f float64, orig any) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return orig
}

// numericValue returns numerics as strings to keep full precision.
func numericValue(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return nil
	}
	return string(b)
}

func clockString(us int64) string {
	d := time.Duration(us) * time.Microsecond
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	frac := us % 1_000_000
	if frac > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, frac)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intervalString(iv pgtype.Interval) string {
	var parts []string
	if years := iv.Months / 12; years != 0 {
		parts = append(parts, fmt.Sprintf("%d year(s)", years))
	}
	if months := iv.Months % 12; months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon(s)", months))
	}
	if iv.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", iv.Days))
	}
	if iv.Microseconds != 0 {
		parts = append(parts, (time.Duration(iv.Microseconds) * time.Microsecond).String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}

func bitString(b pgtype.Bits) string {
	out := make([]byte, b.Len)
	for i := int32(0); i < b.Len; i++ {
		out[i] = '0'
		if b.Bytes[i/8]&(0x80>>uint(i%8)) != 0 {
			out[i] = '1'
		}
	}
	return string(out)
}

func pointString(p pgtype.Vec2) string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

func rangeString(r pgtype.Range[any]) string {
	if r.LowerType == pgtype.Empty {
		return "empty"
	}
	var sb strings.Builder
	if r.LowerType == pgtype.Inclusive {
		sb.WriteByte('[')
	} else {
		sb.WriteByte('(')
	}
	if r.LowerType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", convertValue(r.Lower))
	}
	sb.WriteByte(',')
	if r.UpperType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", convertValue(r.Upper))
	}
	if r.UpperType == pgtype.Inclusive {
		sb.WriteByte(']')
	} else {
		sb.WriteByte(')')
	}
	return sb.String()
}
