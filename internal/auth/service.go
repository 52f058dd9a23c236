// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tollgate/tollgate/internal/apperr"
	"github.com/tollgate/tollgate/internal/id"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/mail"
)

var defaultTracer = otel.Tracer("tollgate/auth")

// Me is the account id that resolves to the caller's own account.
const Me = "me"

// Mail subjects and bodies.
const (
	signupSubject        = "signup link"
	signupBody           = "signup here! https://%s/signup/finish?code=%s"
	passwordResetSubject = "password reset link"
	passwordResetBody    = "password reset here! https://%s/reset_password?code=%s"
)

// Auth event names for metrics.
const (
	EventSignup         = "signup"
	EventSignupFinish   = "signup_finish"
	EventSignin         = "signin"
	EventSignout        = "signout"
	EventForgetPassword = "forget_password"
	EventResetPassword  = "reset_password"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Accounts        AccountRepository
	Authentications AuthenticationRepository
	Sessions        SessionStore
	Mailer          Mailer
	Tx              Transactor
	Stretcher       PasswordHasher
	// IDs defaults to id.Random.
	IDs id.Source
	// Now defaults to time.Now.
	Now func() time.Time
	// Recorder defaults to a no-op.
	Recorder EventRecorder
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Settings tune Service behaviour.
type Settings struct {
	MailDomain            string
	ProvisionalSessionTTL time.Duration
	SessionTTL            time.Duration
	PasswordResetCodeTTL  time.Duration
	// RejectExistingMail makes signup with a registered mail fail with
	// forbidden instead of succeeding silently.
	RejectExistingMail bool
}

// Service implements the signup, signin, and password reset flows.
type Service struct {
	accounts        AccountRepository
	authentications AuthenticationRepository
	sessions        SessionStore
	mailer          Mailer
	tx              Transactor
	stretcher       PasswordHasher
	ids             id.Source
	now             func() time.Time
	recorder        EventRecorder
	tracer          trace.Tracer
	settings        Settings
}

// NewService creates a Service.
func NewService(deps Deps, settings Settings) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("accounts repository is required")
	case deps.Authentications == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("authentications repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("session store is required")
	case deps.Mailer == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("mailer is required")
	case deps.Tx == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("transactor is required")
	case deps.Stretcher == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	case settings.MailDomain == "":
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("mail domain is required")
	}

	if deps.IDs == nil {
		deps.IDs = id.Random{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Tracer == nil {
		deps.Tracer = defaultTracer
	}

	return &Service{
		accounts:        deps.Accounts,
		authentications: deps.Authentications,
		sessions:        deps.Sessions,
		mailer:          deps.Mailer,
		tx:              deps.Tx,
		stretcher:       deps.Stretcher,
		ids:             deps.IDs,
		now:             deps.Now,
		recorder:        deps.Recorder,
		tracer:          deps.Tracer,
		settings:        settings,
	}, nil
}

func (s *Service) sender() string {
	return "noreply@" + s.settings.MailDomain
}

func (s *Service) startSpan(ctx context.Context, event string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+event, trace.WithAttributes(attrs...))
}

// finish records the outcome of an auth event and ends its span.
func (s *Service) finish(span trace.Span, event string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.Classify(err).Code
	}
	s.recorder.RecordAuthEvent(event, result)
	span.SetAttributes(attribute.String("auth.result", result))
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Signup stores provisional credentials and mails a confirmation link.
// A mail that is already registered succeeds without side effects unless
// RejectExistingMail is set.
func (s *Service) Signup(ctx context.Context, mailAddr, password, siteURL string) (err error) {
	ctx, span := s.startSpan(ctx, EventSignup)
	defer func() { s.finish(span, EventSignup, err) }()

	_, err = s.authentications.GetByMail(ctx, mailAddr)
	switch {
	case err == nil:
		if s.settings.RejectExistingMail {
			return apperr.Forbidden("mail is already registered")
		}
		logging.FromContext(ctx).DebugContext(ctx, "signup for registered mail ignored")
		return nil
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "get authentication by mail").
			Wrap(err)
	}

	code := s.ids.New()
	salt := s.ids.New()
	provisional, err := NewProvisionalAuthentication(mailAddr, salt, s.stretcher.Hash(password, salt))
	if err != nil {
		return err
	}

	ps := &ProvisionalSession{Code: code, Authentication: *provisional}
	if err := s.sessions.PutProvisional(ctx, ps, s.settings.ProvisionalSessionTTL); err != nil {
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "put provisional session").
			Wrap(err)
	}

	msg := mail.Message{
		From:    s.sender(),
		To:      mailAddr,
		Subject: signupSubject,
		Body:    fmt.Sprintf(signupBody, siteURL, code),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "send signup mail").
			Wrap(err)
	}
	return nil
}

// SignupFinish turns a provisional session into an account, its
// authentication, and a signed-in session. Account and authentication are
// created in one transaction.
func (s *Service) SignupFinish(ctx context.Context, code string) (sessionID string, err error) {
	ctx, span := s.startSpan(ctx, EventSignupFinish)
	defer func() { s.finish(span, EventSignupFinish, err) }()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		ps, err := s.sessions.GetProvisional(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return apperr.Unexpectedf("provisional session not found")
		}
		if err != nil {
			return oops.Code("AUTH_SIGNUP_FINISH_FAILED").
				With("operation", "get provisional session").
				Wrap(err)
		}
		if ps.Code != code {
			return apperr.Unexpectedf("provisional session code mismatch")
		}

		now := s.now()
		account, err := NewAccount(s.ids.New(), now)
		if err != nil {
			return apperr.Unexpected(err)
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return oops.Code("AUTH_SIGNUP_FINISH_FAILED").
				With("operation", "create account").
				Wrap(err)
		}

		authn, err := NewAuthentication(account.ID, ps.Authentication)
		if err != nil {
			return apperr.Unexpected(err)
		}
		if err := s.authentications.Create(ctx, authn); err != nil {
			return oops.Code("AUTH_SIGNUP_FINISH_FAILED").
				With("operation", "create authentication").
				With("account_id", account.ID).
				Wrap(err)
		}

		session, err := NewSession(s.ids.New(), *account, now)
		if err != nil {
			return apperr.Unexpected(err)
		}
		if err := s.sessions.PutSession(ctx, session, s.settings.SessionTTL); err != nil {
			return oops.Code("AUTH_SIGNUP_FINISH_FAILED").
				With("operation", "put session").
				Wrap(err)
		}
		sessionID = session.ID
		span.SetAttributes(attribute.String("account.id", account.ID))
		return nil
	})
	if err != nil {
		return "", err
	}

	if delErr := s.sessions.DeleteProvisional(ctx, code); delErr != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to delete provisional session", "error", delErr)
	}
	return sessionID, nil
}

// SigninResult is the outcome of a successful Signin.
type SigninResult struct {
	SessionID  string
	RememberMe bool
}

// Signin verifies credentials and creates a session. Unknown mail and wrong
// password fail identically and cost the same stretching work.
func (s *Service) Signin(ctx context.Context, mailAddr, password string, rememberMe bool) (_ *SigninResult, err error) {
	ctx, span := s.startSpan(ctx, EventSignin, attribute.Bool("auth.remember_me", rememberMe))
	defer func() { s.finish(span, EventSignin, err) }()

	authn, err := s.authentications.GetByMail(ctx, mailAddr)
	if errors.Is(err, ErrNotFound) {
		s.stretcher.Burn(password)
		logging.FromContext(ctx).WarnContext(ctx, "signin failed", "reason", "unknown mail")
		return nil, apperr.InvalidEmailOrPassword()
	}
	if err != nil {
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "get authentication by mail").
			Wrap(err)
	}

	span.SetAttributes(attribute.String("account.id", authn.AccountID))

	if !s.stretcher.Verify(password, authn.Salt, authn.PasswordHash) {
		logging.FromContext(ctx).WarnContext(ctx, "signin failed",
			"reason", "password mismatch",
			"account_id", authn.AccountID,
		)
		return nil, apperr.InvalidEmailOrPassword()
	}

	account, err := s.accounts.Get(ctx, authn.AccountID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unexpectedf("account %s missing for authentication", authn.AccountID)
	}
	if err != nil {
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "get account").
			With("account_id", authn.AccountID).
			Wrap(err)
	}

	session, err := NewSession(s.ids.New(), *account, s.now())
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	if err := s.sessions.PutSession(ctx, session, s.settings.SessionTTL); err != nil {
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "put session").
			Wrap(err)
	}

	return &SigninResult{SessionID: session.ID, RememberMe: rememberMe}, nil
}

// Signout deletes a session. Deleting a missing session succeeds.
func (s *Service) Signout(ctx context.Context, sessionID string) (err error) {
	ctx, span := s.startSpan(ctx, EventSignout)
	defer func() { s.finish(span, EventSignout, err) }()

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return oops.Code("AUTH_SIGNOUT_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// ForgetPassword mails a reset code when the mail is registered. Unknown
// mail succeeds without side effects.
func (s *Service) ForgetPassword(ctx context.Context, mailAddr, siteURL string) (err error) {
	ctx, span := s.startSpan(ctx, EventForgetPassword)
	defer func() { s.finish(span, EventForgetPassword, err) }()

	authn, err := s.authentications.GetByMail(ctx, mailAddr)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code("AUTH_FORGET_PASSWORD_FAILED").
			With("operation", "get authentication by mail").
			Wrap(err)
	}

	prc := &PasswordResetCode{Code: s.ids.New(), Mail: authn.Mail}
	if err := s.sessions.PutPasswordResetCode(ctx, prc, s.settings.PasswordResetCodeTTL); err != nil {
		return oops.Code("AUTH_FORGET_PASSWORD_FAILED").
			With("operation", "put password reset code").
			Wrap(err)
	}

	msg := mail.Message{
		From:    s.sender(),
		To:      mailAddr,
		Subject: passwordResetSubject,
		Body:    fmt.Sprintf(passwordResetBody, siteURL, prc.Code),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return oops.Code("AUTH_FORGET_PASSWORD_FAILED").
			With("operation", "send password reset mail").
			Wrap(err)
	}
	return nil
}

// ResetPassword replaces the password of the account a reset code was
// issued for. Unknown codes fail as unexpected.
func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, EventResetPassword)
	defer func() { s.finish(span, EventResetPassword, err) }()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		prc, err := s.sessions.GetPasswordResetCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return apperr.Unexpectedf("password reset code not found")
		}
		if err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").
				With("operation", "get password reset code").
				Wrap(err)
		}

		authn, err := s.authentications.GetByMail(ctx, prc.Mail)
		if errors.Is(err, ErrNotFound) {
			return apperr.Unexpectedf("authentication missing for password reset code")
		}
		if err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").
				With("operation", "get authentication by mail").
				Wrap(err)
		}

		hash := s.stretcher.Hash(newPassword, authn.Salt)
		if err := s.authentications.UpdatePassword(ctx, authn.AccountID, prc.Mail, hash); err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").
				With("operation", "update password").
				With("account_id", authn.AccountID).
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if delErr := s.sessions.DeletePasswordResetCode(ctx, code); delErr != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to delete password reset code", "error", delErr)
	}
	return nil
}

// GetSession resolves a session id. A session whose account no longer
// exists resolves as ErrNotFound and its stored entry is removed.
func (s *Service) GetSession(ctx context.Context, sessionID string) (_ *Session, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.get_session")
	defer func() { endSpan(span, err) }()

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("AUTH_GET_SESSION_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	span.SetAttributes(attribute.String("account.id", session.Account.ID))

	_, err = s.accounts.Get(ctx, session.Account.ID)
	if errors.Is(err, ErrNotFound) {
		logging.FromContext(ctx).InfoContext(ctx, "session account no longer exists",
			"account_id", session.Account.ID)
		if delErr := s.sessions.DeleteSession(ctx, sessionID); delErr != nil {
			logging.FromContext(ctx).WarnContext(ctx, "failed to delete orphaned session", "error", delErr)
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("AUTH_GET_SESSION_FAILED").
			With("operation", "get account").
			With("account_id", session.Account.ID).
			Wrap(err)
	}
	return session, nil
}

// GetAccount returns the account with accountID. Me resolves to the account
// of session, which must then be non-nil.
func (s *Service) GetAccount(ctx context.Context, accountID string, session *Session) (_ *Account, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.get_account",
		trace.WithAttributes(attribute.String("account.id", accountID)))
	defer func() { endSpan(span, err) }()

	if accountID == Me {
		if session == nil {
			return nil, apperr.InvalidSession()
		}
		account := session.Account
		return &account, nil
	}

	account, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("account not found")
	}
	if err != nil {
		return nil, oops.Code("AUTH_GET_ACCOUNT_FAILED").
			With("operation", "get account").
			With("account_id", accountID).
			Wrap(err)
	}
	return account, nil
}

// GenerateAuthenticationRecord builds a matching account and authentication
// for manual provisioning. Nothing is persisted.
func (s *Service) GenerateAuthenticationRecord(mailAddr, password string) (*Account, *Authentication, error) {
	return GenerateAuthenticationRecord(s.ids, s.stretcher, s.now(), mailAddr, password)
}

// GenerateAuthenticationRecord is the store-free form used by the CLI.
func GenerateAuthenticationRecord(ids id.Source, stretcher PasswordHasher, now time.Time, mailAddr, password string) (*Account, *Authentication, error) {
	account, err := NewAccount(ids.New(), now)
	if err != nil {
		return nil, nil, err
	}
	salt := ids.New()
	provisional, err := NewProvisionalAuthentication(mailAddr, salt, stretcher.Hash(password, salt))
	if err != nil {
		return nil, nil, err
	}
	authn, err := NewAuthentication(account.ID, *provisional)
	if err != nil {
		return nil, nil, err
	}
	return account, authn, nil
}
