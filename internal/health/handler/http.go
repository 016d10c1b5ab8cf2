package handler

import (
	"net/http"

	"keyrotation-auth/internal/server/httpx"
)

// HTTP returns the /healthz handler: 200 with the report when serving, 503 otherwise.
func HTTP(checker *Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			httpx.OK(w, r, Report{Serving: true, Checks: map[string]string{}})
			return
		}
		report := checker.Check(r.Context())
		if !report.Serving {
			httpx.Write(w, r, http.StatusServiceUnavailable, httpx.Envelope{Msg: "not serving", Code: httpx.CodeInternal, Data: report})
			return
		}
		httpx.OK(w, r, report)
	})
}
