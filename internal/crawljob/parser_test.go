package crawljob

import "testing"

func TestParseLineRecognizesEachPrefix(t *testing.T) {
	cases := []struct {
		line string
		kind RecordKind
	}{
		{`PROGRESS {"current":1,"total":3,"stage":"fetch"}`, RecordProgress},
		{`QUEUE {"action":"enqueue","url":"https://example.com"}`, RecordQueue},
		{`PROBLEM {"kind":"silence"}`, RecordProblem},
		{`MILESTONE {"kind":"first-page"}`, RecordMilestone},
		{`PLANNER_STAGE {"stage":"seed"}`, RecordPlannerStage},
		{`ERROR {"message":"boom","fatal":true}`, RecordError},
		{`CACHE {"hit":true}`, RecordCache},
	}

	for _, tc := range cases {
		rec, ok := ParseLine(tc.line)
		if !ok {
			t.Fatalf("expected %q to parse", tc.line)
		}
		if rec.Kind != tc.kind {
			t.Errorf("line %q: got kind %s, want %s", tc.line, rec.Kind, tc.kind)
		}
	}
}

func TestParseLineRejectsUnknownPrefix(t *testing.T) {
	_, ok := ParseLine(`DEBUG {"x":1}`)
	if ok {
		t.Fatal("expected unknown prefix to be unparseable")
	}
}

func TestParseLineRejectsMalformedJSON(t *testing.T) {
	_, ok := ParseLine(`PROGRESS {not json`)
	if ok {
		t.Fatal("expected malformed JSON payload to be unparseable")
	}
}

func TestParseLineIgnoresBlankLines(t *testing.T) {
	_, ok := ParseLine("   ")
	if ok {
		t.Fatal("expected blank line to be unparseable")
	}
}

func TestParseLineHandlesBarePrefixNoPayload(t *testing.T) {
	rec, ok := ParseLine("PROGRESS")
	if !ok {
		t.Fatal("expected bare prefix with no payload to default to {}")
	}
	if string(rec.Raw) != "{}" {
		t.Errorf("got payload %s, want {}", rec.Raw)
	}
}
