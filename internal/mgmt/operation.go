package mgmt

import "encoding/json"

// Operation is a management server endpoint name.
type Operation string

const (
	OpLogin         Operation = "login"
	OpLogout        Operation = "logout"
	OpListGateways  Operation = "show-simple-gateways"
	OpGetGateway    Operation = "show-simple-gateway"
	OpCreateGateway Operation = "add-simple-gateway"
	OpPublish       Operation = "publish"
)

// Valid reports whether op is one of the known endpoints.
func (op Operation) Valid() bool {
	switch op {
	case OpLogin, OpLogout, OpListGateways, OpGetGateway, OpCreateGateway, OpPublish:
		return true
	}
	return false
}

// Authenticated reports whether op must carry a session token.
func (op Operation) Authenticated() bool {
	return op != OpLogin
}

// succeeded reports whether a decoded response carries the success marker
// for op.
func (op Operation) succeeded(body map[string]json.RawMessage) bool {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if v, ok := body[k]; ok && len(v) > 0 && string(v) != "null" {
				return true
			}
		}
		return false
	}

	switch op {
	case OpLogin:
		return has("sid")
	case OpListGateways:
		return has("objects")
	case OpGetGateway, OpCreateGateway:
		return has("uid")
	case OpPublish:
		return has("task-id", "task_id")
	case OpLogout:
		return !has("code")
	}
	return false
}
