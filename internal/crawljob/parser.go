package crawljob

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/ternarybob/arbor"
)

// ParseLine splits a raw stdout line into its RecordKind prefix and JSON
// payload. A line that does not start with one of the known prefixes, or
// whose payload is not valid JSON, is unparseable: ok is false and the
// caller logs it to the stderr sink per spec §4.4 ("Unparseable lines are
// logged to stderr sink and otherwise ignored").
func ParseLine(line string) (rec Record, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	space := strings.IndexByte(line, ' ')
	var prefix, rest string
	if space < 0 {
		prefix, rest = line, "{}"
	} else {
		prefix, rest = line[:space], strings.TrimSpace(line[space+1:])
	}

	switch RecordKind(prefix) {
	case RecordProgress, RecordQueue, RecordProblem, RecordMilestone, RecordPlannerStage, RecordError, RecordCache:
	default:
		return Record{}, false
	}

	if !json.Valid([]byte(rest)) {
		return Record{}, false
	}

	return Record{Kind: RecordKind(prefix), Raw: json.RawMessage(rest)}, true
}

// scanLines reads newline-delimited records from r, invoking onRecord for
// every parsed line and onUnparsed for every line that fails ParseLine. It
// returns when r reaches EOF or an error.
func scanLines(r io.Reader, logger arbor.ILogger, onRecord func(Record), onUnparsed func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		rec, ok := ParseLine(line)
		if !ok {
			onUnparsed(line)
			continue
		}
		onRecord(rec)
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn().Err(err).Msg("crawl worker stdout scanner stopped with error")
	}
}
