package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Marker separates natural-language content from its trace payload.
const Marker = "EXECUTION_TRACE:"

const fragmentPrefix = "\n\n" + Marker + " "

// Status reports what Decode found in a piece of content.
type Status int

const (
	// Absent means the content carries no trace marker.
	Absent Status = iota
	// OK means the payload was recovered and parsed.
	OK
	// Malformed means a marker was present but no well-formed payload followed it.
	Malformed
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case OK:
		return "ok"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrTruncated is reported when the payload ends before its outer delimiter closes.
var ErrTruncated = errors.New("trace: payload truncated")

// Result is the outcome of Decode. Records is only non-nil when Status is OK;
// Err is only set when Status is Malformed.
type Result struct {
	Status  Status
	Records []Record
	Err     error
}

// Encode serializes records into a trace fragment. A lone plan record is
// written as a single object, everything else as an array.
func Encode(records ...Record) (string, error) {
	var (
		payload []byte
		err     error
	)
	if len(records) == 1 && records[0].Kind == KindPlan {
		payload, err = json.Marshal(records[0])
	} else {
		payload, err = json.Marshal(records)
	}
	if err != nil {
		return "", fmt.Errorf("encoding trace: %w", err)
	}
	return fragmentPrefix + string(payload), nil
}

// AppendE appends the encoded records to content. Content is returned
// unchanged when there is nothing to append or encoding fails.
func AppendE(content string, records ...Record) (string, error) {
	if len(records) == 0 {
		return content, nil
	}
	fragment, err := Encode(records...)
	if err != nil {
		return content, err
	}
	return content + fragment, nil
}

// Append is AppendE without the error.
func Append(content string, records ...Record) string {
	out, _ := AppendE(content, records...)
	return out
}

// Decode recovers the trace records embedded in content. It never panics and
// never returns partial data: a damaged payload yields Malformed.
func Decode(content string) Result {
	idx := strings.Index(content, Marker)
	if idx < 0 {
		return Result{Status: Absent}
	}
	payload, err := boundPayload(content[idx+len(Marker):])
	if err != nil {
		return Result{Status: Malformed, Err: err}
	}

	var records []Record
	if payload[0] == '{' {
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return Result{Status: Malformed, Err: fmt.Errorf("trace: parsing object: %w", err)}
		}
		records = []Record{rec}
	} else {
		if err := json.Unmarshal([]byte(payload), &records); err != nil {
			return Result{Status: Malformed, Err: fmt.Errorf("trace: parsing array: %w", err)}
		}
		if records == nil {
			records = []Record{}
		}
	}
	return Result{Status: OK, Records: records}
}

// Records is Decode reduced to its records; nil unless the status is OK.
func Records(content string) []Record {
	return Decode(content).Records
}

// Strip returns the natural-language part of content, without any trace fragment.
func Strip(content string) string {
	idx := strings.Index(content, Marker)
	if idx < 0 {
		return content
	}
	return strings.TrimRight(content[:idx], " \t\r\n")
}

// boundPayload returns the JSON value that starts the text after the marker.
// Brackets and braces share one depth counter; delimiters inside string
// literals are skipped.
func boundPayload(rest string) (string, error) {
	start := strings.IndexAny(rest, "{[")
	if start < 0 {
		return "", fmt.Errorf("trace: no payload after marker")
	}
	if lead := strings.TrimSpace(rest[:start]); lead != "" {
		return "", fmt.Errorf("trace: unexpected text %q before payload", lead)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return rest[start : i+1], nil
			}
		}
	}
	return "", ErrTruncated
}
