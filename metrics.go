package tokenauth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Flow labels used on tokenauth_flow_total.
const (
	FlowRegister           = "register"
	FlowLogin              = "login"
	FlowRefresh            = "refresh"
	FlowLogout             = "logout"
	FlowForgotPassword     = "forgot_password"
	FlowResetPassword      = "reset_password"
	FlowVerifyEmail        = "verify_email"
	FlowResendVerification = "resend_verification"
	FlowChangePassword     = "change_password"
	FlowUpdateProfile      = "update_profile"
)

// Metrics contains the Prometheus collectors updated by the Engine.
type Metrics struct {
	FlowTotal        *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
	RotationsTotal   *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them on reg. A nil
// reg leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_flow_total",
				Help: "Total number of auth flows by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_rate_limited_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
		RotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_refresh_rotations_total",
				Help: "Total number of refresh-token rotation attempts by result",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.FlowTotal)
		reg.MustRegister(m.RateLimitedTotal)
		reg.MustRegister(m.RotationsTotal)
	}
	return m
}

func (m *Metrics) flow(flow string, err error) {
	if m == nil {
		return
	}
	m.FlowTotal.WithLabelValues(flow, outcomeLabel(err)).Inc()
}

func (m *Metrics) rateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

func (m *Metrics) rotation(result string) {
	if m == nil {
		return
	}
	m.RotationsTotal.WithLabelValues(result).Inc()
}

// outcomeLabel maps an error to a bounded label value.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := asError(err); ok {
		return e.Code
	}
	return ErrInternal.Code
}
