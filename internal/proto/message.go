// Package proto defines the peer wire protocol: length-prefixed JSON frames,
// one request and one response per QUIC stream.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	TypePull    = "pull"
	TypePush    = "push"
	TypeScore   = "score"
	TypePullOK  = "pull_ok"
	TypePushOK  = "push_ok"
	TypeScoreOK = "score_ok"
	TypeError   = "error"
)

const (
	CodeNotFound    = "not_found"
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

var ErrBadMessage = errors.New("bad message")

type Request struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	ID        string `json:"id,omitempty"`
	Wallet    string `json:"wallet,omitempty"`
}

type Response struct {
	Type      string   `json:"type"`
	RequestID string   `json:"request_id"`
	Wallet    string   `json:"wallet,omitempty"`
	Suffixes  []string `json:"suffixes,omitempty"`
	Code      string   `json:"code,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// NewRequest stamps a fresh request id. walletText is only sent with push.
func NewRequest(kind string, id uint64, walletText string) Request {
	req := Request{Type: kind, RequestID: uuid.NewString(), Wallet: walletText}
	if kind != TypeScore {
		req.ID = FormatWalletID(id)
	}
	return req
}

func FormatWalletID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

func ParseWalletID(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("%w: wallet id %q must be 16 hex chars", ErrBadMessage, s)
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: wallet id %q: %v", ErrBadMessage, s, err)
	}
	return id, nil
}

func (r Request) WalletID() (uint64, error) {
	return ParseWalletID(r.ID)
}

func EncodeRequest(r Request) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if _, err := uuid.Parse(r.RequestID); err != nil {
		return Request{}, fmt.Errorf("%w: request_id: %v", ErrBadMessage, err)
	}
	switch r.Type {
	case TypePull:
		if _, err := r.WalletID(); err != nil {
			return Request{}, err
		}
	case TypePush:
		if r.Wallet == "" {
			return Request{}, fmt.Errorf("%w: push without wallet", ErrBadMessage)
		}
	case TypeScore:
	default:
		return Request{}, fmt.Errorf("%w: unknown request type %q", ErrBadMessage, r.Type)
	}
	return r, nil
}

func EncodeResponse(r Response) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse checks the response answers req.
func DecodeResponse(data []byte, req Request) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if r.RequestID != req.RequestID {
		return Response{}, fmt.Errorf("%w: response for %q, asked %q", ErrBadMessage, r.RequestID, req.RequestID)
	}
	if r.Type != TypeError && r.Type != req.Type+"_ok" {
		return Response{}, fmt.Errorf("%w: %q does not answer %q", ErrBadMessage, r.Type, req.Type)
	}
	return r, nil
}

func ErrorResponse(requestID, code, msg string) Response {
	return Response{Type: TypeError, RequestID: requestID, Code: code, Error: msg}
}

// RemoteError is an error response returned by a peer.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("peer error %s: %s", e.Code, e.Message)
}

// Err returns nil for success responses.
func (r Response) Err() error {
	if r.Type != TypeError {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: r.Error}
}
