package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/smartcontractkit/contract-admin/console"
	"github.com/smartcontractkit/contract-admin/operations"
	"github.com/smartcontractkit/contract-admin/panel"
	"github.com/smartcontractkit/contract-admin/roles"
)

type submitRequest struct {
	Inputs map[string]string `json:"inputs"`
}

type rolesQuery struct {
	Account string `validate:"required,eth_addr"`
}

type roleHashQuery struct {
	Name string `validate:"required,role_name"`
}

// RoleMembership is the membership of one account in one role.
type RoleMembership struct {
	Name   string      `json:"name"`
	Hash   common.Hash `json:"hash"`
	Member bool        `json:"member"`
	Error  string      `json:"error,omitempty"`
}

// SubmitResponse is the outcome of a submitted action.
type SubmitResponse struct {
	Error       string          `json:"error,omitempty"`
	Transaction panel.TxResult  `json:"transaction"`
	URL         string          `json:"url,omitempty"`
	Panel       *panel.Snapshot `json:"panel,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	info, err := s.console.AccountInfo(r.Context())
	if err != nil {
		s.lggr.Warnw("Account lookup failed", "error", err)
		respondError(w, http.StatusBadGateway, err.Error())

		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) sections(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sections": s.console.Sections()})
}

func (s *Server) section(w http.ResponseWriter, r *http.Request) {
	section, panels, err := s.console.Section(mux.Vars(r)["section"])
	if err != nil {
		s.respondErr(w, err)
		return
	}

	snapshots := make([]panel.Snapshot, 0, len(panels))
	for _, p := range panels {
		snapshots = append(snapshots, p.Snapshot())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"section": section,
		"panels":  snapshots,
	})
}

func (s *Server) panel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, p.Snapshot())
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	if err := p.Refresh(r.Context()); err != nil {
		s.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, p.Snapshot())
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	var req submitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	action := mux.Vars(r)["action"]
	res, err := p.Submit(r.Context(), action, req.Inputs)
	if err != nil {
		var verrs panel.ValidationErrors
		if errors.As(err, &verrs) {
			respondValidationErrors(w, verrs.Map())
			return
		}
		if res.Hash == (common.Hash{}) && res.Error == "" {
			s.respondErr(w, err)
			return
		}

		s.lggr.Warnw("Transaction failed", "panel", p.Key(), "action", action, "error", err)
		respondJSON(w, http.StatusBadGateway, SubmitResponse{
			Error:       err.Error(),
			Transaction: res,
			URL:         s.txURL(res.Hash),
		})

		return
	}

	snapshot := p.Snapshot()
	respondJSON(w, http.StatusOK, SubmitResponse{
		Transaction: res,
		URL:         s.txURL(res.Hash),
		Panel:       &snapshot,
	})
}

func (s *Server) panelRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	q := rolesQuery{Account: r.URL.Query().Get("account")}
	if valErrs := s.validator.ValidateStructured(&q); valErrs != nil {
		respondValidationErrors(w, valErrs)
		return
	}
	if err := p.Err(); err != nil {
		s.respondErr(w, err)
		return
	}

	account := common.HexToAddress(q.Account)
	registry := s.console.Registry()
	memberships := make([]RoleMembership, 0, len(p.Roles()))
	for _, name := range p.Roles() {
		m := RoleMembership{Name: name}
		hash, err := registry.Resolve(name)
		if err != nil {
			m.Error = err.Error()
			memberships = append(memberships, m)

			continue
		}
		m.Hash = hash

		member, err := p.HasRole(r.Context(), account, name)
		if err != nil {
			m.Error = err.Error()
		}
		m.Member = member
		memberships = append(memberships, m)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"account": account.Hex(),
		"roles":   memberships,
	})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": p.Events().Recent()})
}

func (s *Server) roles(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"roles": s.console.Registry().Entries()})
}

func (s *Server) roleHash(w http.ResponseWriter, r *http.Request) {
	q := roleHashQuery{Name: r.URL.Query().Get("name")}
	if valErrs := s.validator.ValidateStructured(&q); valErrs != nil {
		respondValidationErrors(w, valErrs)
		return
	}

	hash, err := roles.ComputeRoleHash(q.Name)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, roles.Entry{Name: q.Name, Hash: hash})
}

func (s *Server) history(w http.ResponseWriter, _ *http.Request) {
	reports, err := s.console.History()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"history": reports})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	report, err := s.console.Report(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) lookupPanel(w http.ResponseWriter, r *http.Request) (*panel.Panel, bool) {
	p, err := s.console.Panel(mux.Vars(r)["panel"])
	if err != nil {
		s.respondErr(w, err)
		return nil, false
	}

	return p, true
}

func (s *Server) txURL(hash common.Hash) string {
	if hash == (common.Hash{}) {
		return ""
	}

	return s.console.TxURL(hash)
}

// respondErr maps the console errors to their status codes. Anything unknown is a chain
// error reported verbatim.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, console.ErrUnknownPanel), errors.Is(err, console.ErrUnknownSection),
		errors.Is(err, panel.ErrUnknownAction), errors.Is(err, operations.ErrReportNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, panel.ErrMissingAddress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, panel.ErrReadOnly):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, roles.ErrInvalidRoleName):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.lggr.Warnw("Request failed", "error", err)
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"error":             "Validation failed",
		"validation_errors": errs,
	})
}
