package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/resilience"
)

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Login(ctx context.Context, req ports.LoginRequest) (ports.LoginResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.LoginResponse), args.Error(1)
}

func (m *MockIdentityProvider) RequestPasswordReset(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *MockIdentityProvider) SetNewPassword(ctx context.Context, req ports.NewPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newFormFixture(t *testing.T, kind Kind, cfg flow.Config) (*Form, *Controller, *MockIdentityProvider, *recordedEvents) {
	t.Helper()

	identity := new(MockIdentityProvider)
	bus := events.NewMemoryEventBus()
	rec := &recordedEvents{}
	require.NoError(t, bus.Subscribe("*", func(_ context.Context, e events.Event) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, e)
		return nil
	}))

	ctrl := newController(cfg)
	form := NewForm(kind, ctrl, FormDeps{Identity: identity, EventBus: bus})
	return form, ctrl, identity, rec
}

func TestLoginSuccess(t *testing.T) {
	form, ctrl, identity, rec := newFormFixture(t, KindLogin, testConfig())
	require.NoError(t, ctrl.SetReturnPath("/umbraco/content"))

	var notified []Event
	ctrl.Subscribe(func(ev Event) { notified = append(notified, ev) })

	identity.On("Login", mock.Anything, ports.LoginRequest{Username: "ada@example.com", Password: "secret", Persist: true}).
		Return(ports.LoginResponse{UserID: "u-1"}, nil).Once()

	assert.Equal(t, StateIdle, form.Result().State)

	result, err := form.Submit(context.Background(), Values{Username: "ada@example.com", Password: "secret", Persist: true})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Empty(t, result.Error)
	assert.Equal(t, "/umbraco/content", result.ReturnPath)
	assert.Equal(t, "u-1", result.UserID)
	assert.Equal(t, "ada@example.com", result.Values.Username)
	assert.Empty(t, result.Values.Password)

	require.Len(t, notified, 1)
	assert.Equal(t, EventLoginSuccess, notified[0].Type)
	assert.Equal(t, "u-1", notified[0].UserID)
	assert.Equal(t, []string{events.UserLoggedIn}, rec.types())
	identity.AssertExpectations(t)
}

func TestLoginRejected(t *testing.T) {
	form, ctrl, identity, rec := newFormFixture(t, KindLogin, testConfig())

	notified := 0
	ctrl.Subscribe(func(Event) { notified++ })

	identity.On("Login", mock.Anything, mock.Anything).
		Return(ports.LoginResponse{}, &ports.RejectedError{Status: 401, Message: "Login failed for user ada"}).Once()

	result, err := form.Submit(context.Background(), Values{Username: "ada", Password: "wrong", Persist: true})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "Login failed for user ada", result.Error)
	// entered values survive a failure
	assert.Equal(t, "ada", result.Values.Username)
	assert.True(t, result.Values.Persist)
	assert.Zero(t, notified)
	assert.Empty(t, rec.types())
}

func TestLoginRemoteFailure(t *testing.T) {
	form, _, identity, _ := newFormFixture(t, KindLogin, testConfig())

	identity.On("Login", mock.Anything, mock.Anything).
		Return(ports.LoginResponse{}, resilience.ErrCircuitOpen).Once()

	result, err := form.Submit(context.Background(), Values{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, MessageUnavailable, result.Error)
}

func TestLoginMissingFields(t *testing.T) {
	form, _, identity, _ := newFormFixture(t, KindLogin, testConfig())

	result, err := form.Submit(context.Background(), Values{Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, MessageMissingFields, result.Error)
	identity.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestLoginMFARequired(t *testing.T) {
	form, ctrl, identity, rec := newFormFixture(t, KindLogin, testConfig())
	_, err := ctrl.Navigate("login", nil)
	require.NoError(t, err)

	identity.On("Login", mock.Anything, mock.Anything).Return(ports.LoginResponse{}, ports.ErrMFARequired).Once()

	result, err := form.Submit(context.Background(), Values{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, result.State)
	require.NotNil(t, result.Navigation)
	assert.Equal(t, flow.ViewMFA, result.Navigation.View.Name)
	assert.Equal(t, flow.FlowMFA, ctrl.State().Override)
	assert.Equal(t, []string{events.UserMFARequired}, rec.types())
}

func TestLoginMFARequiredButDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MFAEnabled = false
	form, _, identity, _ := newFormFixture(t, KindLogin, cfg)

	identity.On("Login", mock.Anything, mock.Anything).Return(ports.LoginResponse{}, ports.ErrMFARequired).Once()

	result, err := form.Submit(context.Background(), Values{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, MessageMFADisabled, result.Error)
}

func TestSubmitWhileWaiting(t *testing.T) {
	form, _, identity, _ := newFormFixture(t, KindLogin, testConfig())

	started := make(chan struct{})
	release := make(chan struct{})
	identity.On("Login", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(ports.LoginResponse{UserID: "u-1"}, nil).Once()

	done := make(chan Result)
	go func() {
		r, _ := form.Submit(context.Background(), Values{Username: "ada", Password: "pw"})
		done <- r
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first submission never reached the identity provider")
	}

	result, err := form.Submit(context.Background(), Values{Username: "other", Password: "pw"})
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.Equal(t, StateWaiting, result.State)
	assert.Equal(t, "ada", result.Values.Username)

	close(release)
	assert.Equal(t, StateSuccess, (<-done).State)
	identity.AssertNumberOfCalls(t, "Login", 1)
}

func TestResubmitAfterFailure(t *testing.T) {
	form, _, identity, _ := newFormFixture(t, KindLogin, testConfig())

	identity.On("Login", mock.Anything, mock.Anything).Return(ports.LoginResponse{}, errors.New("connection refused")).Once()
	identity.On("Login", mock.Anything, mock.Anything).Return(ports.LoginResponse{UserID: "u-1"}, nil).Once()

	result, err := form.Submit(context.Background(), Values{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)

	result, err = form.Submit(context.Background(), Values{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Empty(t, result.Error)
}

func TestResetPasswordRequest(t *testing.T) {
	form, ctrl, identity, rec := newFormFixture(t, KindResetPassword, testConfig())

	notified := 0
	ctrl.Subscribe(func(Event) { notified++ })

	identity.On("RequestPasswordReset", mock.Anything, "ada@example.com").Return(nil).Once()

	result, err := form.Submit(context.Background(), Values{Username: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Empty(t, result.ReturnPath)
	assert.Zero(t, notified)
	assert.Equal(t, []string{events.PasswordResetRequested}, rec.types())
}

func TestNewPassword(t *testing.T) {
	form, _, identity, rec := newFormFixture(t, KindNewPassword, testConfig())

	identity.On("SetNewPassword", mock.Anything, ports.NewPasswordRequest{UserID: "7", ResetCode: "rc", Password: "n3w"}).
		Return(&ports.RejectedError{Status: 400, Message: "The reset code has expired"}).Once()
	identity.On("SetNewPassword", mock.Anything, mock.Anything).Return(nil).Once()

	values := Values{UserID: "7", ResetCode: "rc", Password: "n3w"}
	result, err := form.Submit(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "The reset code has expired", result.Error)
	assert.Equal(t, "rc", result.Values.ResetCode)

	result, err = form.Submit(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, []string{events.PasswordChanged}, rec.types())
}
