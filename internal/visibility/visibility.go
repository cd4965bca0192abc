// Package visibility decides which leads an actor may see.
package visibility

import "github.com/nhle/travel-crm/internal/model"

// Filter returns the leads visible to actor. Admins see every lead; other
// roles see only the leads assigned to them by name. The input is not
// modified and the result is computed fresh on every call.
func Filter(actor model.Actor, leads []model.Lead) []model.Lead {
	if actor.IsAdmin() {
		return append([]model.Lead(nil), leads...)
	}

	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if l.AssignedTo == actor.Name {
			out = append(out, l)
		}
	}
	return out
}
