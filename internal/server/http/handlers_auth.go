package httpserver

import (
	"net"
	"net/http"

	"github.com/and161185/timecards/internal/convert"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req convert.Credentials
	if err := convert.Decode(r.Body, &req, false); err != nil {
		writeErr(w, s.log, err)
		return
	}
	resource, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.RegisteredView{Resource: resource})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req convert.Credentials
	if err := convert.Decode(r.Body, &req, false); err != nil {
		writeErr(w, s.log, err)
		return
	}
	tok, acc, err := s.auth.Login(r.Context(), req.Username, req.Password, clientAddr(r))
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.TokenView{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		Resource:    acc.Resource,
	})
}

// clientAddr is the host part of the peer address; the port changes per connection.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
