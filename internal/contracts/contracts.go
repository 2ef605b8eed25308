// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package contracts defines the frozen wire contract spoken by the SQL tools
// service: request and notification method names and their payload shapes.
// The contract is versioned by the backend; this client treats it as fixed
// and forwards unknown fields opaquely rather than renegotiating.
package contracts

// Request methods understood by the tools service.
const (
	MethodConnect       = "connection/connect"
	MethodDisconnect    = "connection/disconnect"
	MethodCancel        = "query/cancel"
	MethodExecuteString = "query/executeString"
)

// Notification methods emitted by the tools service.
const (
	MethodConnectionComplete = "connection/complete"
	MethodQueryStart         = "query/start"
	MethodBatchStart         = "query/batchStart"
	MethodResultSetAvailable = "query/resultSetAvailable"
	MethodRowData            = "query/rowData"
	MethodMessage            = "query/message"
	MethodBatchComplete      = "query/batchComplete"
	MethodQueryComplete      = "query/complete"
)

// ConnectionDetails describes one database connection the tools service
// should open. Options is an open key-value payload: callers may attach
// extension parameters the client forwards without inspecting them.
type ConnectionDetails struct {
	ServerName               string         `json:"serverName"`
	DatabaseName             string         `json:"databaseName,omitempty"`
	UserName                 string         `json:"userName,omitempty"`
	Password                 string         `json:"password,omitempty"`
	AuthenticationType       string         `json:"authenticationType,omitempty"`
	ApplicationName          string         `json:"applicationName,omitempty"`
	MultipleActiveResultSets bool           `json:"multipleActiveResultSets,omitempty"`
	Options                  map[string]any `json:"options,omitempty"`
}

// ConnectParams is the payload of connection/connect.
type ConnectParams struct {
	OwnerURI   string            `json:"ownerUri"`
	Connection ConnectionDetails `json:"connection"`
}

// ServerInfo is reported by the backend once a connection is established.
type ServerInfo struct {
	ServerVersion string `json:"serverVersion"`
	ServerEdition string `json:"serverEdition"`
	IsCloud       bool   `json:"isCloud,omitempty"`
}

// ConnectionCompleteParams is the payload of the connection/complete
// notification. ErrorMessage is non-empty when the connection failed.
type ConnectionCompleteParams struct {
	OwnerURI     string      `json:"ownerUri"`
	ConnectionID string      `json:"connectionId,omitempty"`
	ServerInfo   *ServerInfo `json:"serverInfo,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ErrorNumber  int         `json:"errorNumber,omitempty"`
	Messages     string      `json:"messages,omitempty"`
}

// DisconnectParams is the payload of connection/disconnect.
type DisconnectParams struct {
	OwnerURI string `json:"ownerUri"`
}

// CancelParams is the payload of query/cancel.
type CancelParams struct {
	OwnerURI string `json:"ownerUri"`
}

// CancelResult is the result payload of query/cancel.
type CancelResult struct {
	Messages string `json:"messages,omitempty"`
}

// ExecuteStringParams is the payload of query/executeString.
type ExecuteStringParams struct {
	OwnerURI string `json:"ownerUri"`
	Query    string `json:"query"`
}

// QueryStartParams is the payload of the query/start notification.
type QueryStartParams struct {
	OwnerURI string `json:"ownerUri"`
}

// BatchStartParams is the payload of query/batchStart. SourceText is the
// statement text the backend attributes to this batch; the client never
// splits the submitted query itself.
type BatchStartParams struct {
	OwnerURI   string `json:"ownerUri"`
	BatchIndex int    `json:"batchIndex"`
	SourceText string `json:"sourceText"`
}

// ColumnInfo describes one column of a result set.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

// ResultSetAvailableParams is the payload of query/resultSetAvailable.
type ResultSetAvailableParams struct {
	OwnerURI   string       `json:"ownerUri"`
	BatchIndex int          `json:"batchIndex"`
	Columns    []ColumnInfo `json:"columns"`
}

// RowDataParams is the payload of query/rowData. Rows may arrive in any
// number of chunks; order across chunks is significant.
type RowDataParams struct {
	OwnerURI   string  `json:"ownerUri"`
	BatchIndex int     `json:"batchIndex"`
	Rows       [][]any `json:"rows"`
}

// MessageParams is the payload of query/message. IsError marks backend
// statement failures ("Invalid object name ..."), not client faults.
type MessageParams struct {
	OwnerURI   string `json:"ownerUri"`
	BatchIndex int    `json:"batchIndex"`
	Message    string `json:"message"`
	IsError    bool   `json:"isError,omitempty"`
}

// BatchCompleteParams is the payload of query/batchComplete.
type BatchCompleteParams struct {
	OwnerURI   string `json:"ownerUri"`
	BatchIndex int    `json:"batchIndex"`
	HasError   bool   `json:"hasError,omitempty"`
}

// QueryCompleteParams is the payload of query/complete.
type QueryCompleteParams struct {
	OwnerURI   string `json:"ownerUri"`
	BatchCount int    `json:"batchCount"`
}
