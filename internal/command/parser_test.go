package command

import (
	"testing"

	"github.com/zenithdb/pageserver/internal/perr"
)

func TestParsePagestream(t *testing.T) {
	cmd, err := Parse("pagestream deadbeefdeadbeefdeadbeefdeadbeef cafebabecafebabecafebabecafebabe")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Verb != VerbPagestream {
		t.Fatalf("expected VerbPagestream, got %v", cmd.Verb)
	}
}

func TestParseBasebackupTwoAndThreeArgs(t *testing.T) {
	const tenant = "deadbeefdeadbeefdeadbeefdeadbeef"
	const timeline = "cafebabecafebabecafebabecafebabe"

	cmd, err := Parse("basebackup " + tenant + " " + timeline)
	if err != nil {
		t.Fatalf("2-arg Parse: %v", err)
	}
	if cmd.HasLSN {
		t.Fatal("did not expect LSN for 2-arg form")
	}

	cmd, err = Parse("basebackup " + tenant + " " + timeline + " 1000")
	if err != nil {
		t.Fatalf("3-arg Parse: %v", err)
	}
	if !cmd.HasLSN || cmd.LSN != 0x1000 {
		t.Fatalf("expected lsn 0x1000, got %v (has=%v)", cmd.LSN, cmd.HasLSN)
	}
}

func TestParseTrailingNUL(t *testing.T) {
	cmd, err := Parse("status\x00")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Verb != VerbStatus {
		t.Fatal("expected VerbStatus")
	}
}

func TestParseSetCaseInsensitivePrefix(t *testing.T) {
	cmd, err := Parse("SET search_path = public")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Verb != VerbSet {
		t.Fatal("expected VerbSet")
	}
}

func TestParseUnknownVerb(t *testing.T) {
	_, err := Parse("frobnicate")
	if !perr.Is(err, perr.KindCommandSyntax) {
		t.Fatalf("expected CommandSyntax error, got %v", err)
	}
}

func TestParseDoGCNoHorizon(t *testing.T) {
	const tenant = "deadbeefdeadbeefdeadbeefdeadbeef"
	const timeline = "cafebabecafebabecafebabecafebabe"
	cmd, err := Parse("do_gc " + tenant + " " + timeline)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.HasHorizon {
		t.Fatal("did not expect horizon")
	}
}

func TestParseDoGCWithHorizon(t *testing.T) {
	const tenant = "deadbeefdeadbeefdeadbeefdeadbeef"
	const timeline = "cafebabecafebabecafebabecafebabe"
	cmd, err := Parse("do_gc " + tenant + " " + timeline + " 65536")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cmd.HasHorizon || cmd.Horizon != 65536 {
		t.Fatalf("unexpected horizon: %+v", cmd)
	}
}

func TestParseBranchCreate(t *testing.T) {
	const tenant = "deadbeefdeadbeefdeadbeefdeadbeef"
	cmd, err := Parse("branch_create " + tenant + " mybranch 0/16ABCDE")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.BranchName != "mybranch" || cmd.Startpoint != "0/16ABCDE" {
		t.Fatalf("unexpected parse: %+v", cmd)
	}
}

func TestParseCallMeMaybeFreeTextConnstr(t *testing.T) {
	const tenant = "deadbeefdeadbeefdeadbeefdeadbeef"
	const timeline = "cafebabecafebabecafebabecafebabe"
	cmd, err := Parse("callmemaybe " + tenant + " " + timeline + " host=foo port=5432 user=bar")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.ConnStr != "host=foo port=5432 user=bar" {
		t.Fatalf("unexpected connstr: %q", cmd.ConnStr)
	}
}

func TestParseEmptyQuery(t *testing.T) {
	if _, err := Parse(""); !perr.Is(err, perr.KindCommandSyntax) {
		t.Fatal("expected CommandSyntax error on empty query")
	}
}
