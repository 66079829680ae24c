// Package access implements role based permissions keyed by (role, account).
package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// Role identifies a permission. Named roles are keccak256 of their name.
type Role = common.Hash

// Well known roles
var (
	DefaultAdminRole    = Role{}
	FundManagerRole     = crypto.Keccak256Hash([]byte("FUND_MANAGER_ROLE"))
	FeeManagerRole      = crypto.Keccak256Hash([]byte("FEE_MANAGER_ROLE"))
	RentingOperatorRole = crypto.Keccak256Hash([]byte("RENTING_OPERATOR_ROLE"))
	PauserRole          = crypto.Keccak256Hash([]byte("PAUSER_ROLE"))
)

type grant struct {
	role    Role
	account common.Address
}

// Roles is a permission set. Every role is administered by DefaultAdminRole
// unless SetRoleAdmin says otherwise.
type Roles struct {
	mu     sync.RWMutex
	grants map[grant]bool
	admins map[Role]Role
}

// New returns a permission set where admin holds DefaultAdminRole.
func New(admin common.Address) *Roles {
	r := &Roles{
		grants: make(map[grant]bool),
		admins: make(map[Role]Role),
	}
	r.grants[grant{DefaultAdminRole, admin}] = true
	return r
}

// HasRole reports whether account holds role.
func (r *Roles) HasRole(role Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[grant{role, account}]
}

// RoleAdmin returns the role whose holders may grant and revoke role.
func (r *Roles) RoleAdmin(role Role) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[role]
}

// SetRoleAdmin changes the admin role of role. caller must hold the current admin role.
func (r *Roles) SetRoleAdmin(caller common.Address, role, admin Role) error {
	if err := r.Require(r.RoleAdmin(role), caller, "AccessControl: account is missing role"); err != nil {
		return err
	}
	r.mu.Lock()
	r.admins[role] = admin
	r.mu.Unlock()
	return nil
}

// GrantRole gives account role. caller must hold the admin role of role.
func (r *Roles) GrantRole(caller common.Address, role Role, account common.Address) error {
	if err := r.Require(r.RoleAdmin(role), caller, "AccessControl: account is missing role"); err != nil {
		return err
	}
	r.mu.Lock()
	r.grants[grant{role, account}] = true
	r.mu.Unlock()
	return nil
}

// RevokeRole removes role from account. caller must hold the admin role of role.
func (r *Roles) RevokeRole(caller common.Address, role Role, account common.Address) error {
	if err := r.Require(r.RoleAdmin(role), caller, "AccessControl: account is missing role"); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.grants, grant{role, account})
	r.mu.Unlock()
	return nil
}

// RenounceRole removes role from the caller itself.
func (r *Roles) RenounceRole(caller common.Address, role Role) {
	r.mu.Lock()
	delete(r.grants, grant{role, caller})
	r.mu.Unlock()
}

// Require fails with chain.ErrUnauthorized carrying reason when account lacks role.
func (r *Roles) Require(role Role, account common.Address, reason string) error {
	if !r.HasRole(role, account) {
		return chain.ErrUnauthorized.WithReason(reason)
	}
	return nil
}
