package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"solgate/internal/domain"
	"solgate/internal/intent"
	"solgate/internal/metrics"
	"solgate/internal/transfer"
)

// Version is the release version reported by /status and the CLI.
const Version = "0.1.0"

type nlpRequest struct {
	ConversationID string           `json:"conversationId"`
	Message        string           `json:"message"`
	Prompt         string           `json:"prompt"`
	Messages       []domain.Message `json:"messages"`
}

// text picks the turn text: message, prompt, or the last user entry of a
// client-supplied messages array.
func (r nlpRequest) text() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Prompt != "" {
		return r.Prompt
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == domain.RoleUser && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}

type parseIntentRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type parseIntentResponse struct {
	ConversationID string                 `json:"conversationId,omitempty"`
	Intent         *domain.TransferIntent `json:"intent"`
	Message        string                 `json:"message,omitempty"`
}

// transferAddresses carries the transfer endpoints' address pair. The wire
// names are to/from; the long-form aliases are still accepted.
type transferAddresses struct {
	To               string `json:"to"`
	From             string `json:"from"`
	RecipientAddress string `json:"recipientAddress"`
	SenderAddress    string `json:"senderAddress"`
}

func (a transferAddresses) recipient() string {
	if a.To != "" {
		return a.To
	}
	return a.RecipientAddress
}

func (a transferAddresses) sender() string {
	if a.From != "" {
		return a.From
	}
	return a.SenderAddress
}

type prepareRequest struct {
	ConversationID string  `json:"conversationId"`
	Amount         float64 `json:"amount"`
	transferAddresses
}

type sendRequest struct {
	ConversationID    string  `json:"conversationId"`
	SignedTransaction string  `json:"signedTransaction"`
	Amount            float64 `json:"amount"`
	transferAddresses
}

type sendResponse struct {
	Success              bool   `json:"success"`
	TransactionSignature string `json:"transactionSignature"`
	ExplorerURL          string `json:"explorerUrl"`
	Message              string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleNLP(w http.ResponseWriter, r *http.Request) {
	var req nlpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ClientInputf("invalid JSON body"))
		return
	}
	text := req.text()
	if text == "" {
		s.writeError(w, domain.ClientInputf("message is required"))
		return
	}

	result := s.engine.HandleTurn(r.Context(), req.ConversationID, text)
	status := http.StatusOK
	if result.Failed {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	res, err := s.dataSvc.Balance(r.Context(),
		r.URL.Query().Get("address"), boolParam(r, "mock"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := s.dataSvc.Transaction(r.Context(),
		r.URL.Query().Get("transactionHash"), boolParam(r, "mock"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.PnLOptions{
		ShowHistoricPnL: q.Get("showHistoricPnL"),
		HoldingCheck:    q.Get("holdingCheck"),
		HideDetails:     q.Get("hideDetails"),
	}
	res, err := s.dataSvc.PnL(r.Context(), q.Get("wallet"), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePnLDistribution(w http.ResponseWriter, r *http.Request) {
	res, err := s.dataSvc.PnLDistribution(r.Context(), r.URL.Query().Get("wallet"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleParseIntent extracts a transfer intent from free text and, when a
// conversation is supplied, registers it for confirmation. A conversation
// already holding an unresolved intent answers 409.
func (s *Server) handleParseIntent(w http.ResponseWriter, r *http.Request) {
	var req parseIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ClientInputf("invalid JSON body"))
		return
	}

	it := intent.ParseTransferIntent(req.Message)
	if it == nil {
		s.writeJSON(w, http.StatusOK, parseIntentResponse{Intent: nil})
		return
	}

	out := parseIntentResponse{Intent: it}
	if req.ConversationID != "" {
		prompt, err := s.machine.Begin(req.ConversationID, it)
		if errors.Is(err, transfer.ErrTransferPending) {
			out.Message = prompt
			s.writeJSON(w, http.StatusConflict, out)
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		out.ConversationID = req.ConversationID
		out.Message = prompt
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ClientInputf("invalid JSON body"))
		return
	}

	prepared, err := s.machine.Prepare(req.ConversationID, req.Amount, req.recipient(), req.sender())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prepared)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ClientInputf("invalid JSON body"))
		return
	}

	res, err := s.machine.Send(r.Context(), req.ConversationID,
		req.SignedTransaction, req.Amount, req.recipient(), req.sender())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sendResponse{
		Success:              true,
		TransactionSignature: res.Signature,
		ExplorerURL:          res.ExplorerURL,
		Message:              res.Message,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       Version,
		"uptimeSeconds": int64(metrics.Collector.Uptime().Seconds()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto transport status codes: bad input
// and rejected queries are the caller's fault, upstream failures are a bad
// gateway, transfer pipeline failures and raw faults are internal.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindClientInput, domain.KindValidationGate:
		status = http.StatusBadRequest
	case domain.KindProvider:
		status = http.StatusBadGateway
	}
	s.logger.Error("request failed", "kind", kind, "status", status, "error", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

func boolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}
