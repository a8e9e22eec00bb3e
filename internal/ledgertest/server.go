package ledgertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-rlwallet/internal/log"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/rpcclient"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// request is a JSON-RPC 2.0 request as the server sees it.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string              `json:"jsonrpc"`
	Result  interface{}         `json:"result,omitempty"`
	Error   *rpcclient.RPCError `json:"error,omitempty"`
	ID      interface{}         `json:"id"`
}

// Server exposes a Ledger over JSON-RPC 2.0. It is an http.Handler, so
// tests mount it on an httptest.Server.
type Server struct {
	ledger *Ledger
	logger zerolog.Logger
}

var _ http.Handler = (*Server)(nil)

// NewServer wraps l.
func NewServer(l *Ledger) *Server {
	return &Server{ledger: l, logger: klog.WithComponent("ledgertest")}
}

// ServeHTTP is the JSON-RPC entry point.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, rpcclient.CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, rpcclient.CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, rpcclient.CodeInvalidRequest, "request body too large")
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, rpcclient.CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, rpcclient.CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
		writeJSON(w, response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *request) (interface{}, *rpcclient.RPCError) {
	switch req.Method {
	case rpcclient.MethodGetTip:
		height, header, ok := s.ledger.Tip()
		return rpcclient.TipResult{Height: height, Header: header, Empty: !ok}, nil

	case rpcclient.MethodGetBlockRange:
		var p rpcclient.BlockRangeParam
		if req.Params != nil {
			if rpcErr := parseParams(req, &p); rpcErr != nil {
				return nil, rpcErr
			}
		}
		blocks, err := s.ledger.BlockRange(ctx, p.From)
		if err != nil {
			return nil, ledgerError(err)
		}
		return blocks, nil

	case rpcclient.MethodHashPreimage:
		var p rpcclient.HashParam
		if rpcErr := parseParams(req, &p); rpcErr != nil {
			return nil, rpcErr
		}
		c, err := s.ledger.Resolve(ctx, p.Hash)
		if err != nil {
			return nil, ledgerError(err)
		}
		return c, nil

	case rpcclient.MethodPushTx:
		var p rpcclient.PushTxParam
		if rpcErr := parseParams(req, &p); rpcErr != nil {
			return nil, rpcErr
		}
		if p.Bundle == nil {
			return nil, &rpcclient.RPCError{Code: rpcclient.CodeInvalidParams, Message: "bundle required"}
		}
		if err := s.ledger.Push(ctx, p.Bundle); err != nil {
			return nil, ledgerError(err)
		}
		return rpcclient.PushTxResult{Name: p.Bundle.Name()}, nil

	default:
		return nil, &rpcclient.RPCError{Code: rpcclient.CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func ledgerError(err error) *rpcclient.RPCError {
	var rej *ledger.RejectedError
	switch {
	case errors.As(err, &rej):
		return &rpcclient.RPCError{Code: rpcclient.CodeRejected, Message: rej.Reason}
	case errors.Is(err, ledger.ErrUnknownCoin), errors.Is(err, ledger.ErrUnknownHeader):
		return &rpcclient.RPCError{Code: rpcclient.CodeNotFound, Message: err.Error()}
	default:
		return &rpcclient.RPCError{Code: rpcclient.CodeInternalError, Message: err.Error()}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, response{
		JSONRPC: "2.0",
		Error:   &rpcclient.RPCError{Code: code, Message: message},
		ID:      id,
	})
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *request, target interface{}) *rpcclient.RPCError {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return &rpcclient.RPCError{Code: rpcclient.CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &rpcclient.RPCError{Code: rpcclient.CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
