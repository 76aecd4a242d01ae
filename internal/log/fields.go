package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldTool       = "tool"
	FieldStatus     = "status"
	FieldTable      = "table"
	FieldRange      = "range"
	FieldRowIndex   = "row_index"
	FieldTxID       = "transaction_id"
	FieldCategory   = "category"
	FieldAmount     = "amount"
	FieldMatches    = "matches"
	FieldCells      = "cells_written"
	FieldStrategy   = "strategy"
	FieldBackend    = "backend"
	FieldSheetID    = "sheet_id"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentTools   = "tools"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentSheets  = "sheets"
	ComponentAuth    = "auth"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
	ComponentCache   = "cache"
	ComponentWorker  = "worker"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAppend   = "append"
	OpConnect  = "connect"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
