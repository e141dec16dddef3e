package inbound

import (
	"context"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-social-connect/core"
)

const (
	ActionInit       = "init"
	ActionCallback   = "callback"
	ActionRefresh    = "refresh"
	ActionDisconnect = "disconnect"
	ActionSync       = "sync"
	ActionStatus     = "status"
)

// Request is the single wire shape for every connector action. Unused
// fields for a given action are simply left empty by the caller.
type Request struct {
	Action       string `json:"action"`
	Platform     string `json:"platform"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirectUri,omitempty"`
	State        string `json:"state,omitempty"`
	CodeVerifier string `json:"codeVerifier,omitempty"`
	AccountID    string `json:"accountId,omitempty"`
}

// Dispatcher routes one tagged request to the matching service operation.
// Every action except callback requires a resolvable session; callback's
// trust is rooted in the state token instead.
type Dispatcher struct {
	service  *core.ConnectorService
	verifier core.SessionVerifier
	logger   core.Logger
}

type DispatcherOption func(*Dispatcher)

func WithSessionVerifier(verifier core.SessionVerifier) DispatcherOption {
	return func(d *Dispatcher) {
		if verifier != nil {
			d.verifier = verifier
		}
	}
}

func WithLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(service *core.ConnectorService, opts ...DispatcherOption) (*Dispatcher, error) {
	if service == nil {
		return nil, core.NewInvalidActionError("Connector service is required")
	}
	dispatcher := &Dispatcher{
		service:  service,
		verifier: service.SessionVerifier(),
		logger:   glog.Ensure(service.Dependencies().Logger),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(dispatcher)
	}
	return dispatcher, nil
}

// Dispatch resolves the session where required and invokes the matching
// operation. The returned value is the action's success body.
func (d *Dispatcher) Dispatch(ctx context.Context, authorization string, req Request) (any, error) {
	if d == nil || d.service == nil {
		return nil, core.NewInvalidActionError("Connector dispatcher is not configured")
	}

	action := strings.TrimSpace(strings.ToLower(req.Action))
	switch action {
	case ActionInit, ActionCallback, ActionRefresh, ActionDisconnect, ActionSync, ActionStatus:
	default:
		return nil, core.NewInvalidActionError("Invalid action")
	}

	userID := ""
	if action != ActionCallback {
		resolved, err := d.resolveSession(ctx, authorization)
		if err != nil {
			return nil, err
		}
		userID = resolved
	}

	switch action {
	case ActionInit:
		return d.service.Init(ctx, core.InitRequest{
			UserID:      userID,
			Platform:    req.Platform,
			RedirectURI: req.RedirectURI,
		})
	case ActionCallback:
		return d.service.Callback(ctx, core.CallbackRequest{
			Platform:     req.Platform,
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			State:        req.State,
			CodeVerifier: req.CodeVerifier,
		})
	case ActionRefresh:
		return d.service.Refresh(ctx, core.RefreshRequest{
			Platform:  req.Platform,
			AccountID: req.AccountID,
		})
	case ActionDisconnect:
		return d.service.Disconnect(ctx, core.DisconnectRequest{
			UserID:    userID,
			AccountID: req.AccountID,
		})
	case ActionSync:
		return d.service.Sync(ctx, core.SyncRequest{
			AccountID: req.AccountID,
		})
	default:
		return d.service.Status(ctx, core.StatusRequest{
			UserID:   userID,
			Platform: req.Platform,
		})
	}
}

func (d *Dispatcher) resolveSession(ctx context.Context, authorization string) (string, error) {
	if d.verifier == nil {
		return "", core.NewUnauthorizedError("Unauthorized")
	}
	userID, err := d.verifier.Verify(ctx, strings.TrimSpace(authorization))
	if err != nil || strings.TrimSpace(userID) == "" {
		if err != nil && d.logger != nil {
			d.logger.Debug("session verification failed", "error", err)
		}
		return "", core.NewUnauthorizedError("Unauthorized")
	}
	return strings.TrimSpace(userID), nil
}
