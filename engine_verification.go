package profileauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/profileauth/internal/flows"
	"github.com/MrEthical07/profileauth/internal/limiters"
	"github.com/MrEthical07/profileauth/notify"
)

// Flow names. They are the first segment of every pending-entry key.
const (
	FlowEmailVerify    = "email-verify"
	FlowForgotPassword = "forgot-password"
	FlowLoginChange    = "login-change"
	FlowEmailChange    = "email-change"
	FlowPhoneChange    = "phone-change"
	FlowPasswordChange = "password-change"
)

const (
	emailPhaseCurrent = "current"
	emailPhaseNew     = "new"
)

type verificationFlows struct {
	emailVerify        flows.Flow
	forgotPassword     flows.Flow
	loginChange        flows.Flow
	emailChangeCurrent flows.Flow
	emailChangeNew     flows.Flow
	phoneChange        flows.Flow
	passwordChange     flows.Flow
}

type forgotPasswordPayload struct {
	UserID string `json:"userId"`
}

type loginChangePayload struct {
	NewLogin string `json:"newLogin"`
}

type emailChangePayload struct {
	NewEmail string `json:"newEmail"`
	Phase    string `json:"phase"`
}

type phoneChangePayload struct {
	NewPhoneNumber string `json:"newPhoneNumber"`
}

type passwordChangePayload struct {
	NewPasswordHash string `json:"newPasswordHash"`
}

func encodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodePayload[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode verification payload: %w", err)
	}
	return out, nil
}

// verificationFlows binds the six flows to this engine's user provider.
// emailChangeCurrent and emailChangeNew share one name and so one key; the
// stored phase decides which of them a code belongs to.
func (e *Engine) verificationFlows() verificationFlows {
	v := e.config.Verification
	return verificationFlows{
		emailVerify: flows.Flow{
			Name:     FlowEmailVerify,
			Scope:    flows.ScopeUser,
			TTL:      v.EmailVerifyTTL,
			Subject:  "Email verification",
			Template: "verify-email",
			Apply: func(ctx context.Context, userID string, _ []byte) error {
				return e.updateUser(ctx, userID, UserUpdate{IsEmailVerified: boolPtr(true)})
			},
		},
		forgotPassword: flows.Flow{
			Name:     FlowForgotPassword,
			Scope:    flows.ScopeCode,
			TTL:      v.ForgotPasswordTTL,
			Subject:  "Password recovery",
			Template: "change-password",
			Apply: func(ctx context.Context, _ string, payload []byte) error {
				p, err := decodePayload[forgotPasswordPayload](payload)
				if err != nil {
					return err
				}
				return e.updateUser(ctx, p.UserID, UserUpdate{IsResetVerified: boolPtr(true)})
			},
		},
		loginChange: flows.Flow{
			Name:     FlowLoginChange,
			Scope:    flows.ScopeUser,
			TTL:      v.LoginChangeTTL,
			Subject:  "Login change",
			Template: "change-login",
			Precheck: e.checkLoginChangeCooldown,
			Check:    e.checkLoginChange,
			Apply: func(ctx context.Context, userID string, payload []byte) error {
				p, err := decodePayload[loginChangePayload](payload)
				if err != nil {
					return err
				}
				now := e.now()
				err = e.updateUser(ctx, userID, UserUpdate{Login: &p.NewLogin, LastLoginChangeAt: &now})
				if errors.Is(err, ErrConcurrentUpdate) {
					return ErrLoginTaken
				}
				return err
			},
		},
		emailChangeCurrent: flows.Flow{
			Name:     FlowEmailChange,
			Scope:    flows.ScopeUser,
			TTL:      v.EmailChangeTTL,
			Subject:  "Email change",
			Template: "change-email",
			Check: func(_ context.Context, _ string, payload []byte) error {
				return checkEmailPhase(payload, emailPhaseCurrent)
			},
			Apply: func(ctx context.Context, userID string, _ []byte) error {
				return e.updateUser(ctx, userID, UserUpdate{IsEmailVerified: boolPtr(false)})
			},
		},
		emailChangeNew: flows.Flow{
			Name:     FlowEmailChange,
			Scope:    flows.ScopeUser,
			TTL:      v.EmailChangeTTL,
			Subject:  "Confirm your new email",
			Template: "verify-new-email",
			Check: func(ctx context.Context, userID string, payload []byte) error {
				if err := checkEmailPhase(payload, emailPhaseNew); err != nil {
					return err
				}
				p, err := decodePayload[emailChangePayload](payload)
				if err != nil {
					return err
				}
				return e.ensureEmailFree(ctx, userID, p.NewEmail)
			},
			Apply: func(ctx context.Context, userID string, payload []byte) error {
				p, err := decodePayload[emailChangePayload](payload)
				if err != nil {
					return err
				}
				err = e.updateUser(ctx, userID, UserUpdate{Email: &p.NewEmail, IsEmailVerified: boolPtr(true)})
				if errors.Is(err, ErrConcurrentUpdate) {
					return ErrEmailTaken
				}
				return err
			},
		},
		phoneChange: flows.Flow{
			Name:     FlowPhoneChange,
			Scope:    flows.ScopeUser,
			TTL:      v.PhoneChangeTTL,
			Subject:  "Phone number change",
			Template: "change-phone",
			Apply: func(ctx context.Context, userID string, payload []byte) error {
				p, err := decodePayload[phoneChangePayload](payload)
				if err != nil {
					return err
				}
				return e.updateUser(ctx, userID, UserUpdate{PhoneNumber: &p.NewPhoneNumber})
			},
		},
		passwordChange: flows.Flow{
			Name:     FlowPasswordChange,
			Scope:    flows.ScopeUser,
			TTL:      v.PasswordChangeTTL,
			Subject:  "Password change",
			Template: "change-settings-password",
			Apply: func(ctx context.Context, userID string, payload []byte) error {
				p, err := decodePayload[passwordChangePayload](payload)
				if err != nil {
					return err
				}
				return e.updateUser(ctx, userID, UserUpdate{PasswordHash: &p.NewPasswordHash})
			},
		},
	}
}

func checkEmailPhase(payload []byte, want string) error {
	p, err := decodePayload[emailChangePayload](payload)
	if err != nil {
		return err
	}
	if p.Phase != want {
		return ErrVerificationInvalid
	}
	return nil
}

func (e *Engine) verificationDeps() flows.VerificationDeps {
	return flows.VerificationDeps{
		Store:   e.pending,
		NewCode: e.newCode,
		Send: func(ctx context.Context, n flows.Notification) error {
			err := e.notifier.Send(ctx, notify.Message{
				To:       n.To,
				Subject:  n.Subject,
				Template: n.Template,
				Context:  n.Context,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
			}
			return nil
		},
		ClientIPFromContext: clientIPFromContext,
		CheckRequestLimiter: e.verificationLimiter.CheckRequest,
		CheckConfirmLimiter: e.verificationLimiter.CheckConfirm,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
		Metrics: flows.VerificationMetrics{
			Request:         int(MetricVerificationRequest),
			RequestFailure:  int(MetricVerificationRequestFailure),
			DeliveryFailure: int(MetricVerificationDeliveryFailure),
			Confirm:         int(MetricVerificationConfirm),
			ConfirmFailure:  int(MetricVerificationConfirmFailure),
			NotFound:        int(MetricVerificationNotFound),
			Mismatch:        int(MetricVerificationMismatch),
		},
		Events: flows.VerificationEvents{
			Request: auditEventVerificationRequest,
			Confirm: auditEventVerificationConfirm,
		},
	}
}

// initiate stores a fresh code for flow and sends it to the address in req.
func (e *Engine) initiate(ctx context.Context, flow flows.Flow, req flows.InitiateRequest) error {
	if e == nil || e.pending == nil || e.notifier == nil {
		return ErrEngineNotReady
	}
	res := flows.RunInitiate(ctx, flow, req, e.verificationDeps())
	switch res.Failure {
	case flows.InitiateFailureNone:
		return nil
	case flows.InitiateFailureNotReady:
		return ErrEngineNotReady
	case flows.InitiateFailureRateLimited:
		return verificationLimiterError(res.Err)
	case flows.InitiateFailureDelivery:
		if errors.Is(res.Err, ErrDelivery) {
			return res.Err
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, res.Err)
	case flows.InitiateFailureGenerate:
		return fmt.Errorf("generate verification code: %w", res.Err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
}

// confirm validates code for flow and runs the flow's mutation.
func (e *Engine) confirm(ctx context.Context, flow flows.Flow, req flows.ConfirmRequest) (flows.ConfirmResult, error) {
	if e == nil || e.pending == nil {
		return flows.ConfirmResult{}, ErrEngineNotReady
	}
	res := flows.RunConfirm(ctx, flow, req, e.verificationDeps())
	switch res.Failure {
	case flows.ConfirmFailureNone:
		return res, nil
	case flows.ConfirmFailureNotReady:
		return res, ErrEngineNotReady
	case flows.ConfirmFailureRateLimited:
		return res, verificationLimiterError(res.Err)
	case flows.ConfirmFailureNotFound:
		return res, ErrVerificationNotFound
	case flows.ConfirmFailureMismatch:
		return res, ErrVerificationInvalid
	case flows.ConfirmFailureCheck, flows.ConfirmFailureApply:
		return res, res.Err
	default:
		return res, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
}

func verificationLimiterError(err error) error {
	if errors.Is(err, limiters.ErrLimited) {
		return ErrVerificationRateLimited
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func (e *Engine) updateUser(ctx context.Context, userID string, update UserUpdate) error {
	if userID == "" {
		return ErrUserNotFound
	}
	if _, err := e.userProvider.UpdateUser(ctx, userID, update); err != nil {
		return e.providerError(err)
	}
	return nil
}

func (e *Engine) checkLoginChangeCooldown(ctx context.Context, userID string) error {
	cooldown := e.config.Verification.LoginChangeCooldown
	if cooldown <= 0 {
		return nil
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.LastLoginChangeAt != nil && e.now().Sub(*user.LastLoginChangeAt) < cooldown {
		return ErrLoginChangeCooldown
	}
	return nil
}

func (e *Engine) checkLoginChange(ctx context.Context, userID string, payload []byte) error {
	p, err := decodePayload[loginChangePayload](payload)
	if err != nil {
		return err
	}
	return e.ensureLoginFree(ctx, userID, p.NewLogin)
}

func (e *Engine) ensureLoginFree(ctx context.Context, userID, login string) error {
	other, err := e.userProvider.GetUserByLogin(ctx, login)
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return nil
	case err != nil:
		return e.providerError(err)
	case other.UserID != userID:
		return ErrLoginTaken
	default:
		return nil
	}
}

func (e *Engine) ensureEmailFree(ctx context.Context, userID, email string) error {
	other, err := e.userProvider.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return nil
	case err != nil:
		return e.providerError(err)
	case other.UserID != userID:
		return ErrEmailTaken
	default:
		return nil
	}
}
