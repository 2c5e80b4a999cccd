package flows

import (
	"context"
	"errors"
)

// AuthState is a state of the request authenticator.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAccessValid
	StateAccessExpired
	StateRefreshAttempt
	StateAdmitted
	StateRejected
)

func (s AuthState) String() string {
	switch s {
	case StateAccessValid:
		return "access_valid"
	case StateAccessExpired:
		return "access_expired"
	case StateRefreshAttempt:
		return "refresh_attempt"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	default:
		return "unauthenticated"
	}
}

// AuthFailureKind classifies authenticator rejections.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureAccessInvalid
	AuthFailureRefresh
)

// AuthenticateResult is the outcome of one pass through the state machine.
// Path records every state visited, starting with StateUnauthenticated.
type AuthenticateResult struct {
	State     AuthState
	Path      []AuthState
	Failure   AuthFailureKind
	Err       error
	UserID    string
	Login     string
	Refreshed bool
	Refresh   RefreshResult
}

// AuthenticateDeps captures authenticator dependencies.
type AuthenticateDeps struct {
	// ParseAccess verifies an access token and returns subject and login.
	ParseAccess func(string) (string, string, error)
	// Expired reports whether a ParseAccess error means only "expired".
	Expired func(error) bool
	Refresh RefreshDeps
}

// RunAuthenticate drives the request authenticator:
//
//	Unauthenticated -> AccessValid -> Admitted
//	Unauthenticated -> AccessExpired -> RefreshAttempt -> Admitted | Rejected
//	Unauthenticated -> RefreshAttempt -> Admitted | Rejected   (no access token)
//	Unauthenticated -> Rejected                                (invalid access token)
func RunAuthenticate(ctx context.Context, accessToken, refreshToken string, deps AuthenticateDeps) AuthenticateResult {
	res := AuthenticateResult{State: StateUnauthenticated, Path: []AuthState{StateUnauthenticated}}
	move := func(s AuthState) {
		res.State = s
		res.Path = append(res.Path, s)
	}

	if deps.ParseAccess == nil || deps.Expired == nil {
		move(StateRejected)
		res.Failure = AuthFailureAccessInvalid
		res.Err = errors.New("authenticator not wired")
		return res
	}

	for {
		switch res.State {
		case StateUnauthenticated:
			if accessToken == "" {
				move(StateRefreshAttempt)
				continue
			}
			userID, login, err := deps.ParseAccess(accessToken)
			switch {
			case err == nil:
				res.UserID, res.Login = userID, login
				move(StateAccessValid)
			case deps.Expired(err):
				move(StateAccessExpired)
			default:
				res.Failure = AuthFailureAccessInvalid
				res.Err = err
				move(StateRejected)
			}
		case StateAccessValid:
			move(StateAdmitted)
		case StateAccessExpired:
			move(StateRefreshAttempt)
		case StateRefreshAttempt:
			refreshed := RunRefresh(ctx, refreshToken, deps.Refresh)
			res.Refresh = refreshed
			if refreshed.Failure != RefreshFailureNone {
				res.Failure = AuthFailureRefresh
				res.Err = refreshed.Err
				move(StateRejected)
				continue
			}
			res.UserID, res.Login = refreshed.UserID, refreshed.Login
			res.Refreshed = true
			move(StateAdmitted)
		default:
			return res
		}
	}
}
