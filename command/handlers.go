package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-connect/core"
)

// MutatingService is the slice of the connector a command handler needs.
// *core.ConnectorService satisfies it.
type MutatingService interface {
	Init(ctx context.Context, req core.InitRequest) (core.InitResponse, error)
	Callback(ctx context.Context, req core.CallbackRequest) (core.CallbackResponse, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.RefreshResponse, error)
	Disconnect(ctx context.Context, req core.DisconnectRequest) (core.DisconnectResponse, error)
	Sync(ctx context.Context, req core.SyncRequest) (core.SyncResponse, error)
}

type InitAuthCommand struct {
	service MutatingService
}

func NewInitAuthCommand(service MutatingService) *InitAuthCommand {
	return &InitAuthCommand{service: service}
}

func (c *InitAuthCommand) Execute(ctx context.Context, msg InitAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: init service is required")
	}
	out, err := c.service.Init(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CallbackCommand struct {
	service MutatingService
}

func NewCallbackCommand(service MutatingService) *CallbackCommand {
	return &CallbackCommand{service: service}
}

func (c *CallbackCommand) Execute(ctx context.Context, msg CallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.Callback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.Refresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	out, err := c.service.Disconnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncCommand struct {
	service MutatingService
}

func NewSyncCommand(service MutatingService) *SyncCommand {
	return &SyncCommand{service: service}
}

func (c *SyncCommand) Execute(ctx context.Context, msg SyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.Sync(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
