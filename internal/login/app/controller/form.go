package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/telemetry"
)

var ErrSubmissionInProgress = errors.New("a submission is already in progress")

type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

type Kind string

const (
	KindLogin         Kind = "login"
	KindResetPassword Kind = "reset-password"
	KindNewPassword   Kind = "new-password"
)

// Inline error texts shown under a form.
const (
	MessageUnavailable   = "The login service is unavailable, please try again later"
	MessageMissingFields = "Please fill in all required fields"
	MessageMFADisabled   = "Two-factor authentication is required but not available"
)

// Values are the fields a user typed. The password is never echoed back.
type Values struct {
	Username  string `json:"username,omitempty"`
	Password  string `json:"-"`
	Persist   bool   `json:"persist,omitempty"`
	UserID    string `json:"userId,omitempty"`
	ResetCode string `json:"resetCode,omitempty"`
}

type Result struct {
	Kind       Kind             `json:"form"`
	State      State            `json:"state"`
	Error      string           `json:"error,omitempty"`
	Values     Values           `json:"values"`
	UserID     string           `json:"userId,omitempty"`
	ReturnPath string           `json:"returnPath,omitempty"`
	Navigation *flow.Navigation `json:"navigation,omitempty"`
}

type FormDeps struct {
	Identity  ports.IdentityProvider
	EventBus  events.EventBus
	Telemetry *telemetry.Telemetry
	Logger    logger.Logger
}

// Form runs one kind of submission through idle -> waiting -> success|failed.
// Remote failures end in the failed state with an inline message; they are
// never returned as errors.
type Form struct {
	kind Kind
	ctrl *Controller
	deps FormDeps

	mu     sync.Mutex
	state  State
	errMsg string
	values Values
	userID string
	nav    *flow.Navigation
}

func NewForm(kind Kind, ctrl *Controller, deps FormDeps) *Form {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &Form{
		kind:  kind,
		ctrl:  ctrl,
		deps:  deps,
		state: StateIdle,
	}
}

func (f *Form) Result() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resultLocked()
}

func (f *Form) resultLocked() Result {
	r := Result{
		Kind:       f.kind,
		State:      f.state,
		Error:      f.errMsg,
		Values:     f.values,
		Navigation: f.nav,
	}
	if f.state == StateSuccess && f.kind == KindLogin {
		r.UserID = f.userID
		r.ReturnPath = f.ctrl.ReturnPath()
	}
	return r
}

// Submit sends values to the identity provider. The only error it returns
// is ErrSubmissionInProgress, when a previous submission is still waiting.
func (f *Form) Submit(ctx context.Context, values Values) (Result, error) {
	f.mu.Lock()
	if f.state == StateWaiting {
		r := f.resultLocked()
		f.mu.Unlock()
		metrics.RecordLoginAttempt(string(f.kind), "in_progress")
		return r, ErrSubmissionInProgress
	}
	f.state = StateWaiting
	f.errMsg = ""
	f.nav = nil
	f.userID = ""
	f.values = values
	f.values.Password = ""
	f.mu.Unlock()

	ctx, span := f.deps.Telemetry.StartSpan(ctx, "login.submit."+string(f.kind))
	o := f.call(ctx, values)
	telemetry.End(span, o.err)

	metrics.RecordLoginAttempt(string(f.kind), o.label)
	if o.err != nil && !ports.IsRejected(o.err) {
		f.deps.Logger.Warn("Login form submission failed", "form", f.kind, "error", o.err)
	}

	f.mu.Lock()
	f.state = o.state
	f.errMsg = o.message
	f.nav = o.nav
	f.userID = o.userID
	r := f.resultLocked()
	f.mu.Unlock()

	if o.state == StateSuccess && f.kind == KindLogin {
		f.ctrl.NotifyLoginSuccess(o.userID)
	}
	if o.event != "" {
		f.publish(ctx, o.event, o.userID, values)
	}
	return r, nil
}

type outcome struct {
	state   State
	label   string
	message string
	err     error
	userID  string
	event   string
	nav     *flow.Navigation
}

func (f *Form) call(ctx context.Context, v Values) outcome {
	switch f.kind {
	case KindLogin:
		if v.Username == "" || v.Password == "" {
			return outcome{state: StateFailed, label: "invalid", message: MessageMissingFields}
		}
		resp, err := f.deps.Identity.Login(ctx, ports.LoginRequest{Username: v.Username, Password: v.Password, Persist: v.Persist})
		if errors.Is(err, ports.ErrMFARequired) {
			return f.requireMFA(v)
		}
		if err != nil {
			return failed(err)
		}
		return outcome{state: StateSuccess, label: "success", userID: resp.UserID, event: events.UserLoggedIn}

	case KindResetPassword:
		if v.Username == "" {
			return outcome{state: StateFailed, label: "invalid", message: MessageMissingFields}
		}
		if err := f.deps.Identity.RequestPasswordReset(ctx, v.Username); err != nil {
			return failed(err)
		}
		return outcome{state: StateSuccess, label: "success", event: events.PasswordResetRequested}

	case KindNewPassword:
		if v.UserID == "" || v.ResetCode == "" || v.Password == "" {
			return outcome{state: StateFailed, label: "invalid", message: MessageMissingFields}
		}
		err := f.deps.Identity.SetNewPassword(ctx, ports.NewPasswordRequest{UserID: v.UserID, ResetCode: v.ResetCode, Password: v.Password})
		if err != nil {
			return failed(err)
		}
		return outcome{state: StateSuccess, label: "success", userID: v.UserID, event: events.PasswordChanged}
	}
	return outcome{state: StateFailed, label: "invalid", message: MessageMissingFields}
}

// requireMFA switches the controller to the mfa flow. The form goes back to
// idle since the user has not failed anything yet.
func (f *Form) requireMFA(v Values) outcome {
	nav, err := f.ctrl.OverrideFlow(string(flow.FlowMFA))
	if err != nil || nav.View.Name != flow.ViewMFA {
		return outcome{state: StateFailed, label: "mfa_unavailable", message: MessageMFADisabled, err: err}
	}
	return outcome{state: StateIdle, label: "mfa_required", nav: &nav, event: events.UserMFARequired}
}

func failed(err error) outcome {
	var rejected *ports.RejectedError
	if errors.As(err, &rejected) {
		return outcome{state: StateFailed, label: "rejected", message: rejected.Error(), err: err}
	}
	return outcome{state: StateFailed, label: "error", message: MessageUnavailable, err: err}
}

func (f *Form) publish(ctx context.Context, eventType, userID string, v Values) {
	if f.deps.EventBus == nil {
		return
	}
	event := events.NewEventBuilder(eventType).
		WithAggregateType("login").
		WithAggregateID(v.Username).
		WithUserID(userID).
		WithTraceID(telemetry.TraceID(ctx)).
		Build()
	if err := f.deps.EventBus.Publish(ctx, event); err != nil {
		f.deps.Logger.Error("Failed to publish login event", "type", eventType, "error", err)
	}
}
