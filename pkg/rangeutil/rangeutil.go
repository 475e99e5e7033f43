// Package rangeutil parses HTTP Range headers against a known object
// size, the single pure helper the download router and parts-branch
// fallback both depend on.
package rangeutil

import (
	"strconv"
	"strings"

	"github.com/marmos91/filestore/pkg/apperr"
)

// Range is an inclusive, fully resolved byte range [Start, End] against
// a known total size.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes the range covers.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// Parse parses a Range header value of the form "bytes=a-b", "bytes=a-"
// or "bytes=-N" against total. Multi-range requests ("bytes=0-1,5-6")
// and anything else malformed are rejected. A request whose start is
// at or beyond total is unsatisfiable. An end at or beyond total is
// clamped to total-1.
//
// Returns (range, true, nil) on a valid single range, (zero, false,
// nil) when header is empty (caller should serve the full object), and
// (zero, false, err) with apperr.ErrInvalidRange when the header is
// malformed or unsatisfiable.
func Parse(header string, total int64) (Range, bool, error) {
	if header == "" {
		return Range{}, false, nil
	}
	if total <= 0 {
		return Range{}, false, apperr.New(apperr.ErrInvalidRange, "object has no content to range over")
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Range{}, false, apperr.New(apperr.ErrInvalidRange, "unsupported range unit")
	}
	spec := strings.TrimPrefix(header, prefix)

	if strings.Contains(spec, ",") {
		return Range{}, false, apperr.New(apperr.ErrInvalidRange, "multi-range requests are not supported")
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return Range{}, false, apperr.New(apperr.ErrInvalidRange, "malformed range")
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return Range{}, false, apperr.New(apperr.ErrInvalidRange, "malformed range")

	case startStr == "":
		// suffix range: "-N" means the last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, false, apperr.New(apperr.ErrInvalidRange, "malformed suffix range")
		}
		if n > total {
			n = total
		}
		start = total - n
		end = total - 1

	case endStr == "":
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || n < 0 {
			return Range{}, false, apperr.New(apperr.ErrInvalidRange, "malformed range start")
		}
		start = n
		end = total - 1

	default:
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return Range{}, false, apperr.New(apperr.ErrInvalidRange, "malformed range start")
		}
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < s {
			return Range{}, false, apperr.New(apperr.ErrInvalidRange, "malformed range end")
		}
		start, end = s, e
	}

	if start >= total {
		return Range{}, false, apperr.New(apperr.ErrInvalidRange, "range start beyond object size")
	}
	if end >= total {
		end = total - 1
	}

	return Range{Start: start, End: end}, true, nil
}

// ContentRangeUnsatisfiable builds the "bytes */size" value for the
// Content-Range header of a 416 response.
func ContentRangeUnsatisfiable(total int64) string {
	return "bytes */" + strconv.FormatInt(total, 10)
}

// ContentRange builds the "bytes a-b/size" value for a 206 response.
func ContentRange(r Range, total int64) string {
	return "bytes " + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10) + "/" + strconv.FormatInt(total, 10)
}
