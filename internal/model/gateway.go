package model

import (
	"encoding/json"
	"strings"
)

// Gateway is a security gateway object as returned by the management server.
// Attributes the console does not model are kept in Extra and written back
// unchanged.
type Gateway struct {
	UID              string
	Name             string
	Type             string
	IPv4Address      string
	SICState         string
	Version          string
	OSName           string
	Hardware         string
	Domain           *Domain
	Interfaces       []NetworkInterface
	FirewallSettings json.RawMessage
	Extra            map[string]json.RawMessage
}

// Domain is the management domain a gateway belongs to.
type Domain struct {
	UID        string
	Name       string
	DomainType string
}

// NetworkInterface is a gateway interface. The server's original JSON is
// retained so a clone carries the interface exactly as it was read.
type NetworkInterface struct {
	Name           string
	IPv4Address    string
	IPv4MaskLength string
	InterfaceType  string

	raw json.RawMessage
}

func (g *Gateway) fields() []field {
	return []field{
		{[]string{"uid"}, &g.UID},
		{[]string{"name"}, &g.Name},
		{[]string{"type"}, &g.Type},
		{[]string{"ipv4-address", "ipv4_address", "ipv4Address"}, &g.IPv4Address},
		{[]string{"sic-state", "sic_state", "sicState"}, &g.SICState},
		{[]string{"version"}, &g.Version},
		{[]string{"os-name", "os_name", "osName"}, &g.OSName},
		{[]string{"hardware"}, &g.Hardware},
		{[]string{"domain"}, &g.Domain},
		{[]string{"interfaces"}, &g.Interfaces},
		{[]string{"firewall-settings", "firewall_settings", "firewallSettings"}, &g.FirewallSettings},
	}
}

// UnmarshalJSON accepts hyphenated, underscored and camel-case spellings of
// the known attributes.
func (g *Gateway) UnmarshalJSON(data []byte) error {
	var out Gateway
	extra, err := splitFields(data, out.fields())
	if err != nil {
		return err
	}
	out.Extra = extra
	*g = out
	return nil
}

// MarshalJSON writes the known attributes with the server's hyphenated names
// and merges the extra attributes back in.
func (g Gateway) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Extra)+11)
	for k, v := range g.Extra {
		out[k] = v
	}
	putString(out, "uid", g.UID)
	putString(out, "name", g.Name)
	putString(out, "type", g.Type)
	putString(out, "ipv4-address", g.IPv4Address)
	putString(out, "sic-state", g.SICState)
	putString(out, "version", g.Version)
	putString(out, "os-name", g.OSName)
	putString(out, "hardware", g.Hardware)
	if g.Domain != nil {
		out["domain"] = g.Domain
	}
	if len(g.Interfaces) > 0 {
		out["interfaces"] = g.Interfaces
	}
	if len(g.FirewallSettings) > 0 {
		out["firewall-settings"] = g.FirewallSettings
	}
	return json.Marshal(out)
}

// Matches reports whether term is a case-insensitive substring of the name or
// the IPv4 address. term must already be lower case.
func (g *Gateway) Matches(term string) bool {
	return strings.Contains(strings.ToLower(g.Name), term) ||
		strings.Contains(strings.ToLower(g.IPv4Address), term)
}

func (d *Domain) UnmarshalJSON(data []byte) error {
	var out Domain
	_, err := splitFields(data, []field{
		{[]string{"uid"}, &out.UID},
		{[]string{"name"}, &out.Name},
		{[]string{"domain-type", "domain_type", "domainType"}, &out.DomainType},
	})
	if err != nil {
		return err
	}
	*d = out
	return nil
}

func (d Domain) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	putString(out, "uid", d.UID)
	putString(out, "name", d.Name)
	putString(out, "domain-type", d.DomainType)
	return json.Marshal(out)
}

func (n *NetworkInterface) UnmarshalJSON(data []byte) error {
	var out NetworkInterface
	_, err := splitFields(data, []field{
		{[]string{"name", "interface-name"}, &out.Name},
		{[]string{"ipv4-address", "ipv4_address", "ipv4Address"}, &out.IPv4Address},
		{[]string{"ipv4-mask-length", "ipv4_mask_length", "ipv4MaskLength"}, &out.IPv4MaskLength},
		{[]string{"interface-type", "interface_type", "interfaceType"}, &out.InterfaceType},
	})
	if err != nil {
		return err
	}
	out.raw = append(json.RawMessage(nil), data...)
	*n = out
	return nil
}

// MarshalJSON returns the JSON the interface was read from, or the modelled
// fields for an interface built in code.
func (n NetworkInterface) MarshalJSON() ([]byte, error) {
	if len(n.raw) > 0 {
		return n.raw, nil
	}
	out := make(map[string]any, 4)
	putString(out, "name", n.Name)
	putString(out, "ipv4-address", n.IPv4Address)
	putString(out, "ipv4-mask-length", n.IPv4MaskLength)
	putString(out, "interface-type", n.InterfaceType)
	return json.Marshal(out)
}
