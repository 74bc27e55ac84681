package gateway

import (
	"strings"

	"github.com/martinsuchenak/gwconsole/internal/model"
)

// Filter returns the gateways whose name or IPv4 address contains term,
// ignoring case, in their original order. An empty term returns gateways
// itself. The input is never modified.
func Filter(gateways []model.Gateway, term string) []model.Gateway {
	if term == "" {
		return gateways
	}
	term = strings.ToLower(term)

	out := make([]model.Gateway, 0, len(gateways))
	for i := range gateways {
		if gateways[i].Matches(term) {
			out = append(out, gateways[i])
		}
	}
	return out
}
