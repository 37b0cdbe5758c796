package client

import (
	"fmt"
	"regexp"
	"strings"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
)

// Both 00000000 and 00000-000 are accepted; storage keeps the second form.
var postalCodeRE = regexp.MustCompile(`^\d{5}-?\d{3}$`)

const maxAddressFieldLength = 120

// Plan is the result of reconciling a desired address set against the stored one.
type Plan struct {
	// Final is the surviving set in input order with the principal resolved.
	Final []Address

	// ToDelete holds stored addresses absent from the desired set.
	ToDelete []Address

	previous map[id.ID]Address
}

// ToCreate returns the addresses of Final that do not exist yet.
func (p Plan) ToCreate() []Address {
	var out []Address
	for _, a := range p.Final {
		if a.ID.IsZero() {
			out = append(out, a)
		}
	}
	return out
}

// ToUpdate returns stored addresses whose content changes. Demotions of the
// previous principal come first so that at no point two rows are principal.
func (p Plan) ToUpdate() []Address {
	var demotions, others []Address
	for _, a := range p.Final {
		if a.ID.IsZero() {
			continue
		}
		prev := p.previous[a.ID]
		if prev.sameContent(a) {
			continue
		}
		if prev.Principal && !a.Principal {
			demotions = append(demotions, a)
		} else {
			others = append(others, a)
		}
	}
	return append(demotions, others...)
}

// Principal returns the principal address of the final set, if any.
func (p Plan) Principal() (Address, bool) {
	return principalOf(p.Final)
}

// Empty reports whether applying the plan writes nothing.
func (p Plan) Empty() bool {
	return len(p.ToDelete) == 0 && len(p.ToCreate()) == 0 && len(p.ToUpdate()) == 0
}

// ReconcileAddresses diffs desired against existing for one client.
// An input ID that is not among existing fails with NotFound, so addresses of
// other clients can never be claimed.
func ReconcileAddresses(clientID id.ID, existing []Address, desired []AddressInput) (Plan, error) {
	plan := Plan{previous: make(map[id.ID]Address, len(existing))}
	for _, a := range existing {
		plan.previous[a.ID] = a
	}

	kept := make(map[id.ID]bool, len(desired))
	final := make([]Address, 0, len(desired))
	for i, in := range desired {
		addr, err := NormalizeAddress(in, fmt.Sprintf("addresses[%d].", i))
		if err != nil {
			return Plan{}, err
		}
		addr.ClientID = clientID

		if !in.ID.IsZero() {
			prev, ok := plan.previous[in.ID]
			if !ok {
				return Plan{}, apperror.NewNotFound("address", in.ID.Int64()).
					WithDetail("clientId", clientID.Int64())
			}
			if kept[in.ID] {
				return Plan{}, apperror.NewFieldValidation(fmt.Sprintf("addresses[%d].id", i), "duplicate",
					"address listed more than once")
			}
			kept[in.ID] = true
			addr.CreatedAt = prev.CreatedAt
		}
		final = append(final, addr)
	}

	for _, a := range existing {
		if !kept[a.ID] {
			plan.ToDelete = append(plan.ToDelete, a)
		}
	}

	plan.Final = SelectPrincipal(final)
	return plan, nil
}

// SelectPrincipal enforces the single-principal rule over addrs in order:
// the first address marked principal wins, and when none is marked the first
// address is promoted. The input slice is not modified.
func SelectPrincipal(addrs []Address) []Address {
	out := make([]Address, len(addrs))
	copy(out, addrs)
	if len(out) == 0 {
		return out
	}

	winner := 0
	for i, a := range out {
		if a.Principal {
			winner = i
			break
		}
	}
	for i := range out {
		out[i].Principal = i == winner
	}
	return out
}

// NormalizeAddress validates one address input. prefix is prepended to field
// names in error details ("addresses[1].").
func NormalizeAddress(in AddressInput, prefix string) (Address, error) {
	a := Address{
		ID:         in.ID,
		Street:     strings.TrimSpace(in.Street),
		Number:     strings.TrimSpace(in.Number),
		Complement: strings.TrimSpace(in.Complement),
		District:   strings.TrimSpace(in.District),
		City:       strings.TrimSpace(in.City),
		State:      strings.ToUpper(strings.TrimSpace(in.State)),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Phone:      strings.TrimSpace(in.Phone),
		Principal:  in.Principal,
	}

	required := []struct{ field, value string }{
		{"street", a.Street},
		{"number", a.Number},
		{"district", a.District},
		{"city", a.City},
		{"state", a.State},
		{"postalCode", a.PostalCode},
	}
	for _, r := range required {
		if r.value == "" {
			return Address{}, missingField(prefix + r.field)
		}
		if err := checkLength(prefix+r.field, r.value, maxAddressFieldLength); err != nil {
			return Address{}, err
		}
	}
	if err := checkLength(prefix+"complement", a.Complement, maxAddressFieldLength); err != nil {
		return Address{}, err
	}
	if err := checkLength(prefix+"phone", a.Phone, maxDocumentLength); err != nil {
		return Address{}, err
	}

	if fieldCheck.Var(a.State, "len=2,alpha") != nil {
		return Address{}, apperror.NewFieldValidation(prefix+"state", "format", "state must be a two-letter code")
	}
	if !postalCodeRE.MatchString(a.PostalCode) {
		return Address{}, apperror.NewFieldValidation(prefix+"postalCode", "format", "postal code must match 00000-000")
	}
	a.PostalCode = formatPostalCode(a.PostalCode)

	return a, nil
}

// formatPostalCode stores every postal code with the separator.
func formatPostalCode(pc string) string {
	digits := strings.ReplaceAll(pc, "-", "")
	return digits[:5] + "-" + digits[5:]
}

func principalOf(addrs []Address) (Address, bool) {
	for _, a := range addrs {
		if a.Principal {
			return a, true
		}
	}
	return Address{}, false
}

func findAddress(addrs []Address, addressID id.ID) (Address, bool) {
	for _, a := range addrs {
		if a.ID == addressID {
			return a, true
		}
	}
	return Address{}, false
}

// checkDeletable is the deletion guard: the principal address can only leave
// through a promotion of another address or a full-set update.
func checkDeletable(a Address) error {
	if a.Principal {
		return apperror.NewOperationNotAllowed("cannot delete the principal address; promote another address first").
			WithDetail("addressId", a.ID.Int64())
	}
	return nil
}
