package rpcclient

import (
	"errors"
	"fmt"
)

// URLSchemePreference selects which endpoint of an RPC is dialed.
type URLSchemePreference int

const (
	URLSchemePreferenceNone URLSchemePreference = iota
	URLSchemePreferenceWS
	URLSchemePreferenceHTTP
)

// URLSchemePreferenceFromString parses "ws" or "http". An empty string means no preference.
func URLSchemePreferenceFromString(s string) (URLSchemePreference, error) {
	switch s {
	case "":
		return URLSchemePreferenceNone, nil
	case "ws":
		return URLSchemePreferenceWS, nil
	case "http":
		return URLSchemePreferenceHTTP, nil
	default:
		return URLSchemePreferenceNone, fmt.Errorf("invalid URL scheme preference: %q", s)
	}
}

func (p URLSchemePreference) String() string {
	switch p {
	case URLSchemePreferenceWS:
		return "ws"
	case URLSchemePreferenceHTTP:
		return "http"
	default:
		return ""
	}
}

// RPC is a single node endpoint. Either URL may be empty but not both.
type RPC struct {
	Name               string
	WSURL              string
	HTTPURL            string
	PreferredURLScheme URLSchemePreference
}

// ToEndpoint returns the URL to dial. Without a preference the websocket URL wins so that
// log subscriptions are available.
func (r RPC) ToEndpoint() (string, error) {
	switch r.PreferredURLScheme {
	case URLSchemePreferenceHTTP:
		if r.HTTPURL == "" {
			return "", fmt.Errorf("rpc %q prefers http but has no http url", r.Name)
		}

		return r.HTTPURL, nil
	case URLSchemePreferenceWS:
		if r.WSURL == "" {
			return "", fmt.Errorf("rpc %q prefers ws but has no ws url", r.Name)
		}

		return r.WSURL, nil
	default:
		if r.WSURL != "" {
			return r.WSURL, nil
		}
		if r.HTTPURL != "" {
			return r.HTTPURL, nil
		}

		return "", errors.New("rpc has neither a ws nor an http url")
	}
}

// RPCConfig is the set of endpoints for one chain, primary first.
type RPCConfig struct {
	ChainSelector uint64
	RPCs          []RPC
}
