// Package core holds the shared data model and error taxonomy used across
// the tunnel, connection, tool, and transport layers.
package core

import (
	"fmt"
	"time"
)

// TunnelStatus is the lifecycle state of the SSH Tunnel Manager.
type TunnelStatus string

const (
	TunnelDisconnected TunnelStatus = "disconnected"
	TunnelConnecting   TunnelStatus = "connecting"
	TunnelConnected    TunnelStatus = "connected"
	TunnelReconnecting TunnelStatus = "reconnecting"
	TunnelFailed       TunnelStatus = "failed"
)

// TunnelState is a snapshot of the tunnel's current condition. LocalPort is
// non-zero iff Status is TunnelConnected. ReconnectAttempts resets to 0 on
// every successful connect. LastError is already obfuscated text, never a
// raw error.
type TunnelState struct {
	Status            TunnelStatus
	LocalPort         int
	ConnectedSince    time.Time
	ReconnectAttempts int
	LastError         string
}

// PoolStatus reports the live condition of the Connection Manager's pool.
type PoolStatus struct {
	CurrentLocalPort int
	SSLEnabled       bool
	InFlight         int
	Waiters          int
	TotalConns       int32
	IdleConns        int32
	AcquiredConns    int32
}

// ConnectionStatus is the full result returned by get_connection_status,
// merging tunnel state and pool counters into a single envelope.
type ConnectionStatus struct {
	Initialized   bool         `json:"initialized"`
	ReadOnly      bool         `json:"readOnly"`
	Tunnel        *TunnelState `json:"tunnel,omitempty"`
	Pool          PoolStatus   `json:"pool"`
	IsReconnecting bool        `json:"isReconnecting"`
}

// QueryParamKind tags the closed union of parameter types accepted across
// the external tool surface.
type QueryParamKind int

const (
	ParamString QueryParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamNull
	ParamStringArray
)

// QueryParam is a closed tagged union replacing an in-band "unknown[]"
// parameter array; every tool handler maps its typed inputs into this
// union before the value reaches the driver.
type QueryParam struct {
	Kind QueryParamKind
	S    string
	I    int64
	F    float64
	B    bool
	A    []string
}

// Value returns the Go value the pgx driver should bind for this parameter.
func (p QueryParam) Value() any {
	switch p.Kind {
	case ParamString:
		return p.S
	case ParamInt:
		return p.I
	case ParamFloat:
		return p.F
	case ParamBool:
		return p.B
	case ParamStringArray:
		return p.A
	default:
		return nil
	}
}

// StringParam wraps a plain string as a QueryParam.
func StringParam(s string) QueryParam { return QueryParam{Kind: ParamString, S: s} }

// AnyParam infers a QueryParam's kind from either a decoded JSON value
// (string, float64, bool, []any, or nil as produced by encoding/json) or a
// plain Go value a tool handler builds directly (int64, []string), used for
// parameters like ANY($n) array filters that never round-trip through JSON.
func AnyParam(v any) QueryParam {
	switch t := v.(type) {
	case string:
		return QueryParam{Kind: ParamString, S: t}
	case float64:
		if t == float64(int64(t)) {
			return QueryParam{Kind: ParamInt, I: int64(t)}
		}
		return QueryParam{Kind: ParamFloat, F: t}
	case int64:
		return QueryParam{Kind: ParamInt, I: t}
	case int:
		return QueryParam{Kind: ParamInt, I: int64(t)}
	case bool:
		return QueryParam{Kind: ParamBool, B: t}
	case []string:
		return QueryParam{Kind: ParamStringArray, A: t}
	case []any:
		arr := make([]string, len(t))
		for i, e := range t {
			if s, ok := e.(string); ok {
				arr[i] = s
			} else {
				arr[i] = fmt.Sprint(e)
			}
		}
		return QueryParam{Kind: ParamStringArray, A: arr}
	case nil:
		return QueryParam{Kind: ParamNull}
	default:
		return QueryParam{Kind: ParamNull}
	}
}

// FieldDescriptor describes one column of a query result.
type FieldDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is the envelope returned by executeQuery.
type QueryResult struct {
	Rows      []map[string]any  `json:"rows"`
	RowCount  int               `json:"rowCount"`
	Truncated bool              `json:"truncated"`
	Fields    []FieldDescriptor `json:"fields,omitempty"`
	Command   string            `json:"command,omitempty"`
}

// ToolContent is one element of a tool response's content array.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResponse is the union returned by every tool handler: a success
// response carries StructuredContent matching the tool's declared output
// schema; an error response carries only Content with obfuscated text.
type ToolResponse struct {
	Content           []ToolContent `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError,omitempty"`
}

// TextResult builds a successful ToolResponse wrapping result in the
// {result: ...} shape the protocol expects for structured content.
func TextResult(text string, result any) ToolResponse {
	return ToolResponse{
		Content:           []ToolContent{{Type: "text", Text: text}},
		StructuredContent: map[string]any{"result": result},
	}
}

// ErrorResult builds an error ToolResponse. message must already be
// obfuscated by the caller.
func ErrorResult(message string) ToolResponse {
	return ToolResponse{
		Content: []ToolContent{{Type: "text", Text: message}},
		IsError: true,
	}
}

// Session is a stateful HTTP session record (stateful mode only).
type Session struct {
	ID         string
	LastAccess time.Time
}
