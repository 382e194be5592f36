package patients

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no patient matches the lookup.
	ErrNotFound = errors.New("patients: not found")
	// ErrTaxIDTaken is returned when a tax id already belongs to another patient.
	ErrTaxIDTaken = errors.New("patients: tax id already registered")
)

// Patient is a person reachable at a messaging address. Several patients may
// share one address (dependents); the oldest is the primary.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Name      *string   `json:"name,omitempty"`
	TaxID     *string   `json:"taxId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registered reports whether both name and tax id are on file.
func (p *Patient) Registered() bool {
	return p != nil && nonEmpty(p.Name) && nonEmpty(p.TaxID)
}

// MissingFields lists the registration fields still absent.
func (p *Patient) MissingFields() []string {
	var missing []string
	if p == nil || !nonEmpty(p.Name) {
		missing = append(missing, "name")
	}
	if p == nil || !nonEmpty(p.TaxID) {
		missing = append(missing, "taxId")
	}
	return missing
}

// DisplayName returns the registered name or the address when unnamed.
func (p *Patient) DisplayName() string {
	if p == nil {
		return ""
	}
	if nonEmpty(p.Name) {
		return strings.TrimSpace(*p.Name)
	}
	return p.Address
}

// NameOrEmpty dereferences Name.
func (p *Patient) NameOrEmpty() string {
	if p == nil || p.Name == nil {
		return ""
	}
	return *p.Name
}

// TaxIDOrEmpty dereferences TaxID.
func (p *Patient) TaxIDOrEmpty() string {
	if p == nil || p.TaxID == nil {
		return ""
	}
	return *p.TaxID
}

func nonEmpty(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
