package handler

import (
	"github.com/google/wire"
)

// Handlers 聚合全部 HTTP handler，路由注册的唯一入口。
type Handlers struct {
	Append    *AppendHandler
	File      *FileHandler
	Read      *ReadHandler
	Workspace *WorkspaceHandler
	Webhook   *WebhookHandler
	WS        *WSHandler
	System    *SystemHandler
}

// ProvideHandlers creates the Handlers struct
func ProvideHandlers(
	appendHandler *AppendHandler,
	fileHandler *FileHandler,
	readHandler *ReadHandler,
	workspaceHandler *WorkspaceHandler,
	webhookHandler *WebhookHandler,
	wsHandler *WSHandler,
	systemHandler *SystemHandler,
) *Handlers {
	return &Handlers{
		Append:    appendHandler,
		File:      fileHandler,
		Read:      readHandler,
		Workspace: workspaceHandler,
		Webhook:   webhookHandler,
		WS:        wsHandler,
		System:    systemHandler,
	}
}

// ProviderSet is the Wire provider set for all handlers
var ProviderSet = wire.NewSet(
	NewAppendHandler,
	NewFileHandler,
	NewReadHandler,
	NewWorkspaceHandler,
	NewWebhookHandler,
	NewWSHandler,
	NewSystemHandler,
	ProvideHandlers,
)
