package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InitAuthMessage]   = (*InitAuthCommand)(nil)
	_ gocmd.Commander[CallbackMessage]   = (*CallbackCommand)(nil)
	_ gocmd.Commander[RefreshMessage]    = (*RefreshCommand)(nil)
	_ gocmd.Commander[DisconnectMessage] = (*DisconnectCommand)(nil)
	_ gocmd.Commander[SyncMessage]       = (*SyncCommand)(nil)
)
