// Package handler reports readiness over HTTP (/healthz) and the gRPC health protocol.
package handler

import (
	"context"
	"time"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// LimiterPinger checks the login throttling backend.
type LimiterPinger interface {
	Ping(ctx context.Context) error
}

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	pinger  Pinger
	policy  PolicyChecker
	limiter LimiterPinger
}

// NewChecker returns a Checker. Any argument may be nil.
func NewChecker(pinger Pinger, policy PolicyChecker, limiter LimiterPinger) *Checker {
	return &Checker{pinger: pinger, policy: policy, limiter: limiter}
}

// Report is the result of a readiness check.
type Report struct {
	Serving bool              `json:"serving"`
	Checks  map[string]string `json:"checks"`
}

// Check runs every configured check. The database and policy engine are required; the limiter
// fails open at login, so a limiter failure is reported but does not make the service unready.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Serving: true, Checks: map[string]string{}}
	if c.pinger != nil {
		r.record("database", true, run(ctx, c.pinger.PingContext))
	}
	if c.policy != nil {
		r.record("policy", true, run(ctx, c.policy.HealthCheck))
	}
	if c.limiter != nil {
		r.record("limiter", false, run(ctx, c.limiter.Ping))
	}
	return r
}

func (r *Report) record(name string, required bool, err error) {
	if err == nil {
		r.Checks[name] = "ok"
		return
	}
	r.Checks[name] = "unavailable"
	if required {
		r.Serving = false
	}
}

func run(ctx context.Context, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return f(ctx)
}
