package secureops

// AssignWallet adds a wallet to a role, respecting the role's capacity
// bound. Wallet order is append-only so indexed lookups stay stable.
func (e *Engine) AssignWallet(hash RoleHash, wallet [20]byte) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return e.assignWalletLocked(hash, wallet)
}

func (e *Engine) assignWalletLocked(hash RoleHash, wallet [20]byte) error {
	if isZeroWord20(wallet) {
		return ErrZeroAddress
	}
	role, ok := e.state.role(hash)
	if !ok {
		return ErrRoleNotFound
	}
	if role.HasWallet(wallet) {
		return ErrWalletExists
	}
	if uint32(role.WalletCount()) >= role.MaxWallets {
		return ErrRoleAtCapacity
	}
	role.Wallets = append(role.Wallets, wallet)
	return nil
}

// RevokeWallet removes a wallet from a role. A protected role can never lose
// its last wallet: system roles must not become ownerless.
func (e *Engine) RevokeWallet(hash RoleHash, wallet [20]byte) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	role, ok := e.state.role(hash)
	if !ok {
		return ErrRoleNotFound
	}
	idx := -1
	for i, w := range role.Wallets {
		if w == wallet {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrWalletNotFound
	}
	if role.Protected && role.WalletCount() == 1 {
		return ErrLastWallet
	}
	role.Wallets = append(role.Wallets[:idx], role.Wallets[idx+1:]...)
	return nil
}

// UpdateAssignedWallet atomically replaces oldWallet with newWallet in
// place, preserving the slot index. Ownership-transfer flows rely on the
// primary holder keeping slot zero.
func (e *Engine) UpdateAssignedWallet(hash RoleHash, newWallet, oldWallet [20]byte) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if isZeroWord20(newWallet) {
		return ErrZeroAddress
	}
	role, ok := e.state.role(hash)
	if !ok {
		return ErrRoleNotFound
	}
	if role.HasWallet(newWallet) {
		return ErrWalletExists
	}
	for i, w := range role.Wallets {
		if w == oldWallet {
			role.Wallets[i] = newWallet
			return nil
		}
	}
	return ErrWalletNotFound
}

// HasActionPermission reports whether some role containing the wallet grants
// the action on the selector. This is the single permission primitive every
// handler entry point consults before mutating state.
func (e *Engine) HasActionPermission(wallet [20]byte, selector Selector, action Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasActionPermissionLocked(wallet, selector, action)
}

func (e *Engine) hasActionPermissionLocked(wallet [20]byte, selector Selector, action Action) bool {
	for _, hash := range e.state.SupportedRoles {
		role, ok := e.state.role(hash)
		if !ok || !role.HasWallet(wallet) {
			continue
		}
		if perm, ok := role.Permissions[selector]; ok && perm.GrantedActions.Has(action) {
			return true
		}
	}
	return false
}

// AuthorizedWalletAt returns the wallet at the given slot index of a role.
func (e *Engine) AuthorizedWalletAt(hash RoleHash, index uint32) ([20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	role, ok := e.state.role(hash)
	if !ok {
		return [20]byte{}, ErrRoleNotFound
	}
	if index >= uint32(role.WalletCount()) {
		return [20]byte{}, ErrIndexOutOfBounds
	}
	return role.Wallets[index], nil
}

// AuthorizedWallets returns the ordered wallet set of a role.
func (e *Engine) AuthorizedWallets(hash RoleHash) ([][20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	role, ok := e.state.role(hash)
	if !ok {
		return nil, ErrRoleNotFound
	}
	out := make([][20]byte, len(role.Wallets))
	copy(out, role.Wallets)
	return out, nil
}
