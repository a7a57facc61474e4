// Package wire defines the JSON frames exchanged over the /ws connection.
package wire

import "encoding/json"

// Frame types sent by the client.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeMutate      = "mutate"
)

// Frame types sent by the server.
const (
	TypeQueryResult    = "query_result"
	TypeQueryError     = "query_error"
	TypeMutationResult = "mutation_result"
	TypeMutationError  = "mutation_error"
)

// ClientFrame is what the client writes. ID correlates a subscription or a
// mutation with the server's answers and is chosen by the client.
type ClientFrame struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Query   string            `json:"query,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    map[string]string `json:"args,omitempty"`
}

// ServerFrame is what the server writes.
type ServerFrame struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

func QueryResult(id int64, value json.RawMessage) ServerFrame {
	return ServerFrame{Type: TypeQueryResult, ID: id, Value: value}
}

func QueryError(id int64, err error) ServerFrame {
	return ServerFrame{Type: TypeQueryError, ID: id, Error: err.Error()}
}

func MutationResult(id int64, value json.RawMessage) ServerFrame {
	return ServerFrame{Type: TypeMutationResult, ID: id, Value: value}
}

func MutationError(id int64, err error) ServerFrame {
	return ServerFrame{Type: TypeMutationError, ID: id, Error: err.Error()}
}
