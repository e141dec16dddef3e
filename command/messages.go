package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-social-connect/core"
)

const (
	TypeInitAuth   = "socialconnect.command.auth.init"
	TypeCallback   = "socialconnect.command.auth.callback"
	TypeRefresh    = "socialconnect.command.token.refresh"
	TypeDisconnect = "socialconnect.command.account.disconnect"
	TypeSync       = "socialconnect.command.account.sync"
)

type InitAuthMessage struct {
	Request core.InitRequest
}

func (InitAuthMessage) Type() string { return TypeInitAuth }

func (m InitAuthMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.Request.Platform) == "" {
		return fmt.Errorf("command: platform is required")
	}
	return nil
}

type CallbackMessage struct {
	Request core.CallbackRequest
}

func (CallbackMessage) Type() string { return TypeCallback }

func (m CallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.Platform) == "" {
		return fmt.Errorf("command: platform is required")
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: state is required")
	}
	return nil
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if strings.TrimSpace(m.Request.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type DisconnectMessage struct {
	Request core.DisconnectRequest
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.Request.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type SyncMessage struct {
	Request core.SyncRequest
}

func (SyncMessage) Type() string { return TypeSync }

func (m SyncMessage) Validate() error {
	if strings.TrimSpace(m.Request.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}
