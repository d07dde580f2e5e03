// Package command recognizes the simple-query verbs the control
// dispatcher accepts and extracts their arguments. The original
// pageserver used ad-hoc regular expressions per verb (one Regexp
// literal per branch); a small structured tokenizer is a cleaner
// equivalent, since the exact regex spelling was never a contract, only
// the argument grammar is. This package is that tokenizer: split on
// single ASCII spaces, strip a trailing NUL if present, dispatch on the
// leading token.
package command

import (
	"strconv"
	"strings"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/perr"
)

type Verb int

const (
	VerbUnknown Verb = iota
	VerbControlFile
	VerbPagestream
	VerbBasebackup
	VerbCallMeMaybe
	VerbBranchCreate
	VerbBranchList
	VerbTenantList
	VerbTenantCreate
	VerbPush
	VerbRequestPush
	VerbStatus
	VerbSet
	VerbDoGC
)

// Command is the parsed form of one simple-query payload.
type Command struct {
	Verb Verb

	Tenant   ids.TenantId
	Timeline ids.TimelineId

	// BranchName / Startpoint: branch_create.
	BranchName string
	Startpoint string

	// ConnStr: callmemaybe / request_push free-text connection string.
	ConnStr string

	// LSN: basebackup's optional third argument.
	LSN    ids.LSN
	HasLSN bool

	// Horizon: do_gc's optional third argument.
	Horizon    uint64
	HasHorizon bool
}

// Parse tokenizes the payload of a Simple Query message. The trailing NUL
// libpq appends to query strings is stripped first if present.
func Parse(query string) (Command, error) {
	query = strings.TrimSuffix(query, "\x00")
	query = strings.TrimSpace(query)
	if query == "" {
		return Command{}, perr.Syntax("empty query")
	}

	fields := strings.Split(query, " ")
	verbTok := fields[0]

	// "set ..." is recognized case-insensitively by prefix, ahead of the
	// exact-match verbs below.
	if strings.EqualFold(verbTok, "set") {
		return Command{Verb: VerbSet}, nil
	}

	switch verbTok {
	case "controlfile":
		if len(fields) != 1 {
			return Command{}, perr.Syntax("controlfile takes no arguments")
		}
		return Command{Verb: VerbControlFile}, nil

	case "status":
		if len(fields) != 1 {
			return Command{}, perr.Syntax("status takes no arguments")
		}
		return Command{Verb: VerbStatus}, nil

	case "tenant_list":
		if len(fields) != 1 {
			return Command{}, perr.Syntax("tenant_list takes no arguments")
		}
		return Command{Verb: VerbTenantList}, nil

	case "pagestream":
		return parseTenantTimeline(VerbPagestream, fields)

	case "push":
		return parseTenantTimeline(VerbPush, fields)

	case "basebackup":
		return parseBasebackup(fields)

	case "callmemaybe":
		return parseTenantTimelineConnstr(VerbCallMeMaybe, fields)

	case "request_push":
		return parseTenantTimelineConnstr(VerbRequestPush, fields)

	case "branch_create":
		return parseBranchCreate(fields)

	case "branch_list":
		if len(fields) != 2 {
			return Command{}, perr.Syntax("branch_list <tenant>")
		}
		tid, err := ids.ParseTenantId(fields[1])
		if err != nil {
			return Command{}, perr.Syntax("branch_list: %v", err)
		}
		return Command{Verb: VerbBranchList, Tenant: tid}, nil

	case "tenant_create":
		if len(fields) != 2 {
			return Command{}, perr.Syntax("tenant_create <tenant>")
		}
		tid, err := ids.ParseTenantId(fields[1])
		if err != nil {
			return Command{}, perr.Syntax("tenant_create: %v", err)
		}
		return Command{Verb: VerbTenantCreate, Tenant: tid}, nil

	case "do_gc":
		return parseDoGC(fields)

	default:
		return Command{}, perr.Syntax("unrecognized verb %q", verbTok)
	}
}

func parseTenantTimeline(verb Verb, fields []string) (Command, error) {
	if len(fields) != 3 {
		return Command{}, perr.Syntax("%s <tenant> <timeline>", fields[0])
	}
	tid, err := ids.ParseTenantId(fields[1])
	if err != nil {
		return Command{}, perr.Syntax("%s: %v", fields[0], err)
	}
	tlid, err := ids.ParseTimelineId(fields[2])
	if err != nil {
		return Command{}, perr.Syntax("%s: %v", fields[0], err)
	}
	return Command{Verb: verb, Tenant: tid, Timeline: tlid}, nil
}

func parseTenantTimelineConnstr(verb Verb, fields []string) (Command, error) {
	if len(fields) < 4 {
		return Command{}, perr.Syntax("%s <tenant> <timeline> <connstr>", fields[0])
	}
	tid, err := ids.ParseTenantId(fields[1])
	if err != nil {
		return Command{}, perr.Syntax("%s: %v", fields[0], err)
	}
	tlid, err := ids.ParseTimelineId(fields[2])
	if err != nil {
		return Command{}, perr.Syntax("%s: %v", fields[0], err)
	}
	connstr := strings.Join(fields[3:], " ")
	return Command{Verb: verb, Tenant: tid, Timeline: tlid, ConnStr: connstr}, nil
}

// parseBasebackup accepts both the 2-argument and 3-argument forms;
// callers may omit the LSN to request a basebackup as of the current
// tip.
func parseBasebackup(fields []string) (Command, error) {
	if len(fields) != 3 && len(fields) != 4 {
		return Command{}, perr.Syntax("basebackup <tenant> <timeline> [<lsn>]")
	}
	tid, err := ids.ParseTenantId(fields[1])
	if err != nil {
		return Command{}, perr.Syntax("basebackup: %v", err)
	}
	tlid, err := ids.ParseTimelineId(fields[2])
	if err != nil {
		return Command{}, perr.Syntax("basebackup: %v", err)
	}
	cmd := Command{Verb: VerbBasebackup, Tenant: tid, Timeline: tlid}
	if len(fields) == 4 {
		lsn, err := strconv.ParseUint(fields[3], 16, 64)
		if err != nil {
			return Command{}, perr.Syntax("basebackup: invalid lsn %q", fields[3])
		}
		cmd.LSN = ids.LSN(lsn)
		cmd.HasLSN = true
	}
	return cmd, nil
}

func parseBranchCreate(fields []string) (Command, error) {
	if len(fields) != 4 {
		return Command{}, perr.Syntax("branch_create <tenant> <name> <startpoint>")
	}
	tid, err := ids.ParseTenantId(fields[1])
	if err != nil {
		return Command{}, perr.Syntax("branch_create: %v", err)
	}
	return Command{Verb: VerbBranchCreate, Tenant: tid, BranchName: fields[2], Startpoint: fields[3]}, nil
}

func parseDoGC(fields []string) (Command, error) {
	if len(fields) != 3 && len(fields) != 4 {
		return Command{}, perr.Syntax("do_gc <tenant> <timeline> [<horizon>]")
	}
	tid, err := ids.ParseTenantId(fields[1])
	if err != nil {
		return Command{}, perr.Syntax("do_gc: %v", err)
	}
	tlid, err := ids.ParseTimelineId(fields[2])
	if err != nil {
		return Command{}, perr.Syntax("do_gc: %v", err)
	}
	cmd := Command{Verb: VerbDoGC, Tenant: tid, Timeline: tlid}
	if len(fields) == 4 {
		horizon, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return Command{}, perr.Syntax("do_gc: invalid horizon %q", fields[3])
		}
		cmd.Horizon = horizon
		cmd.HasHorizon = true
	}
	return cmd, nil
}
