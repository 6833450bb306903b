package chord

import (
	"fmt"

	"golang.org/x/xerrors"
)

// RemoteError describes a remote call that did not produce a usable reply,
// either because the transport failed or because the peer answered with an
// error status.
type RemoteError struct {
	Op         string
	Address    string
	StatusCode int // 0 when no HTTP reply was received
	Err        error
}

func (re *RemoteError) Error() string {
	if re.StatusCode != 0 {
		return fmt.Sprintf("%s on %s: status %d: %v", re.Op, re.Address, re.StatusCode, re.Err)
	}
	return fmt.Sprintf("%s on %s: %v", re.Op, re.Address, re.Err)
}

func (re *RemoteError) Unwrap() error {
	return re.Err
}

// Is makes every RemoteError match ErrRemoteUnavailable.
func (re *RemoteError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

// Temporary reports whether the failure came from the transport rather than
// from a reply of the peer.
func (re *RemoteError) Temporary() bool {
	return re.StatusCode == 0
}

func remoteErr(op, address string, err error) error {
	return &RemoteError{Op: op, Address: address, Err: err}
}

// Sentinels that survive a trip over the wire, keyed by ErrorReply.Kind.
// The first match wins, so specific kinds come before the errors they wrap.
var errorKinds = []struct {
	kind string
	err  error
}{
	{"invalid_finger_index", ErrInvalidFingerIndex},
	{"invalid_identifier", ErrInvalidIdentifier},
	{"invalid_address", ErrInvalidAddress},
	{"collision", ErrIdentifierCollision},
	{"lookup_exhausted", ErrLookupExhausted},
	{"propagation_limit", ErrPropagationLimit},
	{"remote_unavailable", ErrRemoteUnavailable},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if xerrors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

func kindError(kind string) (error, bool) {
	for _, k := range errorKinds {
		if k.kind == kind {
			return k.err, true
		}
	}
	return nil, false
}

// badRequest reports whether err was caused by the caller's input.
func badRequest(err error) bool {
	return xerrors.Is(err, ErrInvalidIdentifier) || xerrors.Is(err, ErrInvalidAddress)
}
