package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/profileauth/internal/stores"
)

// ScopeKind selects what the second half of a pending key is.
type ScopeKind int

const (
	// ScopeUser keys the entry by user id: one pending entry per user and flow.
	ScopeUser ScopeKind = iota
	// ScopeCode keys the entry by the code itself, for callers that are not
	// signed in (forgot password).
	ScopeCode
)

const maxCodeCollisions = 5

var (
	// ErrEntryNotFound reports a confirm with no live pending entry.
	ErrEntryNotFound = errors.New("pending entry not found")
	// ErrCodeMismatch reports a confirm whose code differs from the stored one.
	ErrCodeMismatch = errors.New("code mismatch")
)

// Flow describes one code-gated identity mutation.
//
// Check runs after a matching lookup and before the entry is claimed; an
// error leaves the entry intact. Apply runs after the entry is claimed; an
// error restores it.
type Flow struct {
	Name     string
	Scope    ScopeKind
	TTL      time.Duration
	Subject  string
	Template string
	// Precheck runs before the code is looked up, so its error wins over a
	// wrong or missing code. The entry is left in place.
	Precheck func(ctx context.Context, userID string) error
	Check    func(ctx context.Context, userID string, payload []byte) error
	Apply    func(ctx context.Context, userID string, payload []byte) error
}

// Notification is what the flow hands to the sender.
type Notification struct {
	To       string
	Subject  string
	Template string
	Context  map[string]string
}

// PendingStore is the subset of stores.PendingStore used by the workflow.
type PendingStore interface {
	Key(flow, scope string) string
	Save(ctx context.Context, key, code string, payload []byte, ttl time.Duration) error
	SaveNew(ctx context.Context, key, code string, payload []byte, ttl time.Duration) (bool, error)
	Lookup(ctx context.Context, key, code string) (stores.LookupResult, error)
	Consume(ctx context.Context, key, code string) (stores.LookupStatus, error)
	Restore(ctx context.Context, entry *stores.PendingEntry) error
}

type VerificationMetrics struct {
	Request         int
	RequestFailure  int
	DeliveryFailure int
	Confirm         int
	ConfirmFailure  int
	NotFound        int
	Mismatch        int
}

type VerificationEvents struct {
	Request string
	Confirm string
}

// VerificationDeps captures workflow dependencies.
type VerificationDeps struct {
	Store               PendingStore
	NewCode             func() (string, error)
	Send                func(context.Context, Notification) error
	ClientIPFromContext func(context.Context) string
	CheckRequestLimiter func(ctx context.Context, flow, scope, ip string) error
	CheckConfirmLimiter func(ctx context.Context, flow, scope, ip string) error
	MetricInc           func(int)
	EmitAudit           func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)
	Warn                func(msg string, args ...any)

	Metrics VerificationMetrics
	Events  VerificationEvents
}

// InitiateFailureKind classifies initiate failures for root-level mapping.
type InitiateFailureKind int

const (
	InitiateFailureNone InitiateFailureKind = iota
	InitiateFailureNotReady
	InitiateFailureRateLimited
	InitiateFailureGenerate
	InitiateFailureStore
	InitiateFailureDelivery
)

// InitiateRequest is one initiate call. UserID is the subject of the
// mutation; To is the delivery address.
type InitiateRequest struct {
	UserID  string
	To      string
	Payload []byte
	Context map[string]string
}

type InitiateResult struct {
	Failure InitiateFailureKind
	Err     error
	Key     string
}

// ConfirmFailureKind classifies confirm failures for root-level mapping.
type ConfirmFailureKind int

const (
	ConfirmFailureNone ConfirmFailureKind = iota
	ConfirmFailureNotReady
	ConfirmFailureRateLimited
	ConfirmFailureNotFound
	ConfirmFailureMismatch
	ConfirmFailureCheck
	ConfirmFailureStore
	ConfirmFailureApply
)

// ConfirmRequest is one confirm call. UserID is ignored for ScopeCode flows.
type ConfirmRequest struct {
	UserID string
	Code   string
}

type ConfirmResult struct {
	Failure ConfirmFailureKind
	Err     error
	Key     string
	UserID  string
	Payload []byte
}

// RunInitiate generates a code, stores it at the flow key and delivers it.
// A delivery failure leaves the stored entry in place.
func RunInitiate(ctx context.Context, flow Flow, req InitiateRequest, deps VerificationDeps) InitiateResult {
	normalizeVerificationDeps(&deps)

	if deps.Store == nil || deps.NewCode == nil || deps.Send == nil || flow.TTL <= 0 {
		return InitiateResult{Failure: InitiateFailureNotReady, Err: errors.New("verification flow not wired")}
	}

	meta := func() map[string]string {
		return map[string]string{"flow": flow.Name}
	}

	ip := deps.ClientIPFromContext(ctx)
	if err := deps.CheckRequestLimiter(ctx, flow.Name, req.UserID, ip); err != nil {
		deps.MetricInc(deps.Metrics.RequestFailure)
		deps.EmitAudit(ctx, deps.Events.Request, false, req.UserID, err, meta)
		return InitiateResult{Failure: InitiateFailureRateLimited, Err: err}
	}

	code, key, res := storeCode(ctx, flow, req, deps)
	if res.Failure != InitiateFailureNone {
		deps.MetricInc(deps.Metrics.RequestFailure)
		deps.EmitAudit(ctx, deps.Events.Request, false, req.UserID, res.Err, meta)
		return res
	}

	msgContext := make(map[string]string, len(req.Context)+1)
	for k, v := range req.Context {
		msgContext[k] = v
	}
	msgContext["code"] = code

	if err := deps.Send(ctx, Notification{
		To:       req.To,
		Subject:  flow.Subject,
		Template: flow.Template,
		Context:  msgContext,
	}); err != nil {
		deps.MetricInc(deps.Metrics.DeliveryFailure)
		deps.Warn("verification delivery failed", "flow", flow.Name, "error", err)
		deps.EmitAudit(ctx, deps.Events.Request, false, req.UserID, err, meta)
		return InitiateResult{Failure: InitiateFailureDelivery, Err: err, Key: key}
	}

	deps.MetricInc(deps.Metrics.Request)
	deps.EmitAudit(ctx, deps.Events.Request, true, req.UserID, nil, meta)
	return InitiateResult{Key: key}
}

func storeCode(ctx context.Context, flow Flow, req InitiateRequest, deps VerificationDeps) (string, string, InitiateResult) {
	if flow.Scope == ScopeUser {
		code, err := deps.NewCode()
		if err != nil {
			return "", "", InitiateResult{Failure: InitiateFailureGenerate, Err: err}
		}
		key := deps.Store.Key(flow.Name, req.UserID)
		if err := deps.Store.Save(ctx, key, code, req.Payload, flow.TTL); err != nil {
			return "", "", InitiateResult{Failure: InitiateFailureStore, Err: err}
		}
		return code, key, InitiateResult{}
	}

	for i := 0; i < maxCodeCollisions; i++ {
		code, err := deps.NewCode()
		if err != nil {
			return "", "", InitiateResult{Failure: InitiateFailureGenerate, Err: err}
		}
		key := deps.Store.Key(flow.Name, code)
		ok, err := deps.Store.SaveNew(ctx, key, code, req.Payload, flow.TTL)
		if err != nil {
			return "", "", InitiateResult{Failure: InitiateFailureStore, Err: err}
		}
		if ok {
			return code, key, InitiateResult{}
		}
	}
	return "", "", InitiateResult{Failure: InitiateFailureGenerate, Err: errors.New("no free verification code")}
}

// RunConfirm validates code against the pending entry and applies the
// mutation. At most one of several concurrent confirms for the same entry
// reaches Apply.
func RunConfirm(ctx context.Context, flow Flow, req ConfirmRequest, deps VerificationDeps) ConfirmResult {
	normalizeVerificationDeps(&deps)

	if deps.Store == nil || flow.Apply == nil {
		return ConfirmResult{Failure: ConfirmFailureNotReady, Err: errors.New("verification flow not wired")}
	}

	scope := req.UserID
	if flow.Scope == ScopeCode {
		scope = req.Code
	}
	key := deps.Store.Key(flow.Name, scope)
	meta := func() map[string]string {
		return map[string]string{"flow": flow.Name}
	}
	fail := func(kind ConfirmFailureKind, userID string, err error) ConfirmResult {
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, userID, err, meta)
		return ConfirmResult{Failure: kind, Err: err, Key: key, UserID: userID}
	}

	limiterScope := req.UserID
	if err := deps.CheckConfirmLimiter(ctx, flow.Name, limiterScope, deps.ClientIPFromContext(ctx)); err != nil {
		return fail(ConfirmFailureRateLimited, req.UserID, err)
	}

	if flow.Precheck != nil {
		if err := flow.Precheck(ctx, req.UserID); err != nil {
			return fail(ConfirmFailureCheck, req.UserID, err)
		}
	}

	if req.Code == "" || scope == "" {
		deps.MetricInc(deps.Metrics.NotFound)
		return fail(ConfirmFailureNotFound, req.UserID, fmt.Errorf("%w: empty code or scope", ErrEntryNotFound))
	}

	lookup, err := deps.Store.Lookup(ctx, key, req.Code)
	if err != nil {
		return fail(ConfirmFailureStore, req.UserID, err)
	}
	switch lookup.Status {
	case stores.LookupNotFound:
		deps.MetricInc(deps.Metrics.NotFound)
		deps.Warn("verification entry not found", "flow", flow.Name)
		return fail(ConfirmFailureNotFound, req.UserID, ErrEntryNotFound)
	case stores.LookupMismatch:
		deps.MetricInc(deps.Metrics.Mismatch)
		return fail(ConfirmFailureMismatch, req.UserID, ErrCodeMismatch)
	}

	entry := lookup.Entry
	userID := req.UserID
	if flow.Scope == ScopeCode {
		userID = ""
	}

	if flow.Check != nil {
		if err := flow.Check(ctx, userID, entry.Payload); err != nil {
			return fail(ConfirmFailureCheck, req.UserID, err)
		}
	}

	status, err := deps.Store.Consume(ctx, key, req.Code)
	if err != nil {
		return fail(ConfirmFailureStore, req.UserID, err)
	}
	switch status {
	case stores.LookupNotFound:
		deps.MetricInc(deps.Metrics.NotFound)
		return fail(ConfirmFailureNotFound, req.UserID, fmt.Errorf("%w: claimed concurrently", ErrEntryNotFound))
	case stores.LookupMismatch:
		deps.MetricInc(deps.Metrics.Mismatch)
		return fail(ConfirmFailureMismatch, req.UserID, fmt.Errorf("%w: replaced concurrently", ErrCodeMismatch))
	}

	if err := flow.Apply(ctx, userID, entry.Payload); err != nil {
		if restoreErr := deps.Store.Restore(ctx, entry); restoreErr != nil {
			deps.Warn("verification entry restore failed", "flow", flow.Name, "error", restoreErr)
		}
		return fail(ConfirmFailureApply, req.UserID, err)
	}

	deps.MetricInc(deps.Metrics.Confirm)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, req.UserID, nil, meta)
	return ConfirmResult{Key: key, UserID: req.UserID, Payload: entry.Payload}
}

func normalizeVerificationDeps(deps *VerificationDeps) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.CheckRequestLimiter == nil {
		deps.CheckRequestLimiter = func(context.Context, string, string, string) error { return nil }
	}
	if deps.CheckConfirmLimiter == nil {
		deps.CheckConfirmLimiter = func(context.Context, string, string, string) error { return nil }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
}
