package serve

import (
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/wire"
)

// negotiateStartup answers SSLRequest probes with 'N' and loops until it
// reads a real Startup message, matching libpq's negotiation sequence;
// see wire.Reader.ReadStartup's doc comment for the message shapes
// involved.
func negotiateStartup(r *wire.Reader, w *wire.Writer) (wire.StartupParams, error) {
	for {
		params, isSSL, err := r.ReadStartup()
		if err != nil {
			return nil, err
		}
		if isSSL {
			if err := w.WriteReject(); err != nil {
				return nil, err
			}
			continue
		}
		return params, nil
	}
}

// authenticate runs NegotiateAuth against the connection's startup
// parameters and, on success, completes the handshake by queuing
// AuthenticationOk and the first ReadyForQuery.
func authenticate(params wire.StartupParams, token string, w *wire.Writer) error {
	if _, err := wire.NegotiateAuth(params, token); err != nil {
		return perr.New(perr.KindInvariantViolation, "authentication failed: %v", err)
	}
	w.QueueAuthenticationOk().QueueReadyForQuery(wire.TxIdle)
	return w.Flush()
}

// errCode maps a perr.Kind onto the SQLSTATE-shaped code ErrorResponse
// carries. There is no real catalog of error codes behind this service,
// so these are a deterministic, reasonable-enough convention rather than
// a contract any client parses.
func errCode(err error) string {
	switch perr.KindOf(err) {
	case perr.KindCommandSyntax:
		return "42601" // syntax_error
	case perr.KindProtocolFraming:
		return "08P01" // protocol_violation
	case perr.KindResourceNotFound:
		return "42704" // undefined_object
	case perr.KindInvariantViolation:
		return "28000" // invalid_authorization_specification / conflict
	case perr.KindRepositoryFailure:
		return "58030" // io_error
	case perr.KindFatalIO:
		return "58030"
	default:
		return "XX000" // internal_error
	}
}
