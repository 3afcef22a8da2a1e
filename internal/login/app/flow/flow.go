// Package flow resolves which login view to show for a navigation. Everything
// here is a pure function of the path, the query, the override flow and the
// configuration.
package flow

import (
	"net/url"
	"strings"
	"time"
)

// Flow is a login sub-flow requested by the URL or by an override signal.
type Flow string

const (
	FlowNone          Flow = ""
	FlowMFA           Flow = "mfa"
	FlowResetPassword Flow = "reset-password"
	FlowInviteUser    Flow = "invite-user"
)

// ParseFlow matches s case-insensitively; anything unknown is FlowNone.
func ParseFlow(s string) Flow {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(FlowMFA):
		return FlowMFA
	case string(FlowResetPassword):
		return FlowResetPassword
	case string(FlowInviteUser):
		return FlowInviteUser
	default:
		return FlowNone
	}
}

// ViewName identifies one of the mutually exclusive login views.
type ViewName string

const (
	ViewDefaultLogin         ViewName = "default-login"
	ViewMFA                  ViewName = "mfa"
	ViewResetPasswordRequest ViewName = "reset-password-request"
	ViewNewPassword          ViewName = "new-password"
	ViewInviteAccept         ViewName = "invite-accept"
	ViewErrorResetExpired    ViewName = "error-reset-expired"
	ViewErrorInviteExpired   ViewName = "error-invite-expired"
)

// Slot is a named insertion point for content supplied by the hosting page.
type Slot string

const (
	SlotSubheadline Slot = "subheadline"
	SlotExternal    Slot = "external"
)

const StatusResetCodeExpired = "resetCodeExpired"

// Config holds the flags the embedding page sets on the login application.
type Config struct {
	AllowPasswordReset bool   `json:"allowPasswordReset"`
	AllowUserInvite    bool   `json:"allowUserInvite"`
	UsernameIsEmail    bool   `json:"usernameIsEmail"`
	DisableLocalLogin  bool   `json:"disableLocalLogin"`
	MFAEnabled         bool   `json:"mfaEnabled"`
	BackgroundImage    string `json:"backgroundImage,omitempty"`
	LogoImage          string `json:"logoImage,omitempty"`
}

// Query carries the recognised query parameters.
type Query struct {
	Flow       string `json:"flow,omitempty"`
	Status     string `json:"status,omitempty"`
	UserID     string `json:"userId,omitempty"`
	ResetCode  string `json:"resetCode,omitempty"`
	ReturnPath string `json:"returnPath,omitempty"`
}

func QueryFrom(values url.Values) Query {
	return Query{
		Flow:       values.Get("flow"),
		Status:     values.Get("status"),
		UserID:     values.Get("userId"),
		ResetCode:  values.Get("resetCode"),
		ReturnPath: values.Get("returnPath"),
	}
}

// Values is the inverse of QueryFrom; empty parameters are dropped.
func (q Query) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("flow", q.Flow)
	set("status", q.Status)
	set("userId", q.UserID)
	set("resetCode", q.ResetCode)
	set("returnPath", q.ReturnPath)
	return v
}

// Input is everything a view function may look at besides the configuration.
type Input struct {
	Query    Query
	Override Flow
}

// View is the resolved view model handed to the browser shell.
type View struct {
	Name               ViewName `json:"name"`
	AllowPasswordReset bool     `json:"allowPasswordReset,omitempty"`
	UsernameIsEmail    bool     `json:"usernameIsEmail,omitempty"`
	Slots              []Slot   `json:"slots,omitempty"`
	UserID             string   `json:"userId,omitempty"`
	ResetCode          string   `json:"resetCode,omitempty"`
	// BackLink is the route an error view offers to go back to.
	BackLink string `json:"backLink,omitempty"`
}

// Resolve picks the view for the login route.
func Resolve(cfg Config, in Input) View {
	q := in.Query

	if strings.EqualFold(q.Status, StatusResetCodeExpired) {
		return View{Name: ViewErrorResetExpired, BackLink: RouteReset}
	}

	if ParseFlow(q.Flow) == FlowInviteUser && isFalsy(q.Status) {
		return View{Name: ViewErrorInviteExpired, BackLink: RouteLogin}
	}

	f := in.Override
	if f == FlowNone {
		f = ParseFlow(q.Flow)
	}
	if f == FlowMFA && !cfg.MFAEnabled {
		f = FlowNone
	}

	switch f {
	case FlowMFA:
		return View{Name: ViewMFA}
	case FlowResetPassword:
		return View{Name: ViewNewPassword, UserID: q.UserID, ResetCode: q.ResetCode}
	case FlowInviteUser:
		return View{Name: ViewInviteAccept, UserID: q.UserID}
	default:
		return defaultLogin(cfg)
	}
}

func defaultLogin(cfg Config) View {
	return View{
		Name:               ViewDefaultLogin,
		AllowPasswordReset: cfg.AllowPasswordReset && !cfg.DisableLocalLogin,
		UsernameIsEmail:    cfg.UsernameIsEmail,
		Slots:              []Slot{SlotSubheadline, SlotExternal},
	}
}

func isFalsy(status string) bool {
	s := strings.TrimSpace(status)
	return strings.EqualFold(s, "false") || s == "0"
}

var greetings = [...]string{
	time.Sunday:    "Happy super Sunday",
	time.Monday:    "Happy marvelous Monday",
	time.Tuesday:   "Happy tubular Tuesday",
	time.Wednesday: "Happy wonderful Wednesday",
	time.Thursday:  "Happy thunderous Thursday",
	time.Friday:    "Happy funky Friday",
	time.Saturday:  "Happy Saturday",
}

// Greeting is the headline shown above the login form on day d.
func Greeting(d time.Weekday) string {
	return greetings[d]
}
