package chord

/*
HTTPTransport
* Sends node operations to the HTTP servers of other nodes.
* One JSON request/response pair per operation, see HTTPNodeServer for routes.
* Transport failures and 5xx replies come back as *RemoteError.
* 4xx replies come back wrapping the sentinel named by the reply.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

// RequestIDHeader carries the id of a single outbound call.
const RequestIDHeader = "X-Request-Id"

type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport whose calls give up after timeout.
// A zero timeout waits as long as the context allows.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// baseURL turns an address into a URL. ":8001" means a node on this host.
func baseURL(address string) string {
	if strings.HasPrefix(address, ":") {
		return fmt.Sprintf("http://localhost%s", address) // e.g. http://localhost:8001
	}
	return "http://" + address
}

func (t *HTTPTransport) do(ctx context.Context, op, method, address, path string, in, out interface{}) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return xerrors.Errorf("%s: failed to marshal request: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL(address)+path, &body)
	if err != nil {
		return xerrors.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set(RequestIDHeader, xid.New().String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return remoteErr(op, address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return replyError(op, address, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Op: op, Address: address, StatusCode: resp.StatusCode, Err: xerrors.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func replyError(op, address string, resp *http.Response) error {
	var reply ErrorReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil || reply.Error == "" {
		reply.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}

	cause := xerrors.New(reply.Error)
	if sentinel, ok := kindError(reply.Kind); ok {
		cause = xerrors.Errorf("%s: %w", reply.Error, sentinel)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return xerrors.Errorf("%s on %s: %w", op, address, cause)
	}
	return &RemoteError{Op: op, Address: address, StatusCode: resp.StatusCode, Err: cause}
}

func (t *HTTPTransport) GetSuccessor(ctx context.Context, address string) (string, error) {
	var reply AddressReply
	if err := t.do(ctx, "get successor", http.MethodGet, address, "/successor", nil, &reply); err != nil {
		return "", err
	}
	return reply.Address, nil
}

func (t *HTTPTransport) GetPredecessor(ctx context.Context, address string) (string, error) {
	var reply AddressReply
	if err := t.do(ctx, "get predecessor", http.MethodGet, address, "/predecessor", nil, &reply); err != nil {
		return "", err
	}
	return reply.Address, nil
}

func (t *HTTPTransport) SetPredecessor(ctx context.Context, address, predecessor string) error {
	req := SetPredecessorRequest{Predecessor: predecessor}
	return t.do(ctx, "set predecessor", http.MethodPost, address, "/setpredecessor", req, nil)
}

func (t *HTTPTransport) ClosestPrecedingFinger(ctx context.Context, address string, id ID) (string, error) {
	var reply AddressReply
	path := "/closestprecedingfinger/" + strconv.FormatUint(uint64(id), 10)
	if err := t.do(ctx, "closest preceding finger", http.MethodGet, address, path, nil, &reply); err != nil {
		return "", err
	}
	return reply.Address, nil
}

func (t *HTTPTransport) FindSuccessor(ctx context.Context, address string, id ID) (string, error) {
	var reply AddressReply
	path := "/findsuccessor/" + strconv.FormatUint(uint64(id), 10)
	if err := t.do(ctx, "find successor", http.MethodGet, address, path, nil, &reply); err != nil {
		return "", err
	}
	return reply.Address, nil
}

func (t *HTTPTransport) UpdateFingerTable(ctx context.Context, address string, req UpdateFingerTableRequest) (bool, error) {
	var reply UpdateFingerTableReply
	if err := t.do(ctx, "update finger table", http.MethodPost, address, "/updatefingertable", req, &reply); err != nil {
		return false, err
	}
	return reply.Done, nil
}

func (t *HTTPTransport) Ping(ctx context.Context, address string) error {
	var reply PingReply
	return t.do(ctx, "ping", http.MethodGet, address, "/ping", nil, &reply)
}

// Info fetches the routing state of the node at address.
func (t *HTTPTransport) Info(ctx context.Context, address string) (NodeInfo, error) {
	var info NodeInfo
	err := t.do(ctx, "info", http.MethodGet, address, "/", nil, &info)
	return info, err
}

// Fingers fetches the finger table of the node at address.
func (t *HTTPTransport) Fingers(ctx context.Context, address string) ([]FingerEntry, error) {
	var entries []FingerEntry
	err := t.do(ctx, "fingers", http.MethodGet, address, "/fingers", nil, &entries)
	return entries, err
}

// Lookup asks the node at address for the owner of a hex encoded key.
func (t *HTTPTransport) Lookup(ctx context.Context, address, hexKey string) (LookupReply, error) {
	var reply LookupReply
	err := t.do(ctx, "lookup", http.MethodGet, address, "/lookup/"+hexKey, nil, &reply)
	return reply, err
}
