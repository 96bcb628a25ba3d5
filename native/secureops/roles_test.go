package secureops

import (
	"errors"
	"testing"
)

func TestAssignWalletCapacity(t *testing.T) {
	fx := newFixture(t)
	hash, err := fx.engine.CreateRole("SINGLE_SEAT_ROLE", 1, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := fx.engine.AssignWallet(hash, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := fx.engine.AssignWallet(hash, word(30)); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := fx.engine.AssignWallet(hash, word(30)); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
	if err := fx.engine.AssignWallet(hash, word(31)); !errors.Is(err, ErrRoleAtCapacity) {
		t.Fatalf("expected ErrRoleAtCapacity, got %v", err)
	}
	if err := fx.engine.AssignWallet(RoleHashFromName("NO_SUCH_ROLE"), word(30)); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestRevokeWalletProtectedFloor(t *testing.T) {
	fx := newFixture(t)
	ownerHash := RoleHashFromName(OwnerRoleName)

	if err := fx.engine.RevokeWallet(ownerHash, fx.owner); !errors.Is(err, ErrLastWallet) {
		t.Fatalf("expected ErrLastWallet, got %v", err)
	}
	if err := fx.engine.RevokeWallet(ownerHash, word(77)); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	// Unprotected roles can be emptied.
	if err := fx.engine.RevokeWallet(fx.opsRole, fx.owner); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	role, err := fx.engine.GetRole(fx.opsRole)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if role.HasWallet(fx.owner) {
		t.Fatalf("wallet still present after revocation")
	}
}

func TestUpdateAssignedWalletKeepsSlot(t *testing.T) {
	fx := newFixture(t)
	hash, err := fx.engine.CreateRole("SIGNERS_ROLE", 4, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, w := range [][20]byte{word(50), word(51), word(52)} {
		if err := fx.engine.AssignWallet(hash, w); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}

	if err := fx.engine.UpdateAssignedWallet(hash, word(60), word(51)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := fx.engine.AuthorizedWalletAt(hash, 1)
	if err != nil {
		t.Fatalf("wallet at: %v", err)
	}
	if got != word(60) {
		t.Fatalf("replacement did not keep the slot: got %x", got)
	}

	if err := fx.engine.UpdateAssignedWallet(hash, word(50), word(52)); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
	if err := fx.engine.UpdateAssignedWallet(hash, word(61), word(99)); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if err := fx.engine.UpdateAssignedWallet(hash, [20]byte{}, word(50)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestAuthorizedWalletQueries(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.AuthorizedWalletAt(fx.opsRole, 99); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}
	wallets, err := fx.engine.AuthorizedWallets(fx.opsRole)
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if len(wallets) != 3 || wallets[0] != fx.owner {
		t.Fatalf("unexpected wallet order: %x", wallets)
	}
	if _, err := fx.engine.AuthorizedWallets(RoleHashFromName("NO_SUCH_ROLE")); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

// TestHasActionPermission churns roles, grants and memberships through the
// engine while mirroring every change in a local model, then checks the full
// wallet by selector by action cross product against that model.
func TestHasActionPermission(t *testing.T) {
	fx := newFixture(t)

	everyAction := []Action{
		ActionExecuteTimeDelayRequest,
		ActionExecuteTimeDelayApprove,
		ActionExecuteTimeDelayCancel,
		ActionSignMetaApprove,
		ActionSignMetaCancel,
		ActionSignMetaRequestAndApprove,
		ActionExecuteMetaApprove,
		ActionExecuteMetaCancel,
		ActionExecuteMetaRequestAndApprove,
	}

	type modelRole struct {
		hash    RoleHash
		wallets map[[20]byte]bool
		grants  map[Selector]ActionSet
	}
	// The fixture's ops role already grants both fixture selectors to the
	// owner, executor and signer wallets.
	ops := &modelRole{
		hash:    fx.opsRole,
		wallets: map[[20]byte]bool{fx.owner: true, fx.executor: true, fx.signer: true},
		grants: map[Selector]ActionSet{
			fx.handlerSel: allActions(),
			fx.execSel:    allActions(),
		},
	}
	model := []*modelRole{ops}

	register := func(sig string, actions ActionSet) Selector {
		t.Helper()
		sel := SelectorFromSignature(sig)
		if err := fx.engine.CreateFunctionSchema(sig, sel, OperationTypeFromName(sig), sig, actions, false, []Selector{fx.handlerSel}); err != nil {
			t.Fatalf("create schema %s: %v", sig, err)
		}
		return sel
	}
	newRole := func(name string, maxWallets uint32) *modelRole {
		t.Helper()
		hash, err := fx.engine.CreateRole(name, maxWallets, false)
		if err != nil {
			t.Fatalf("create role %s: %v", name, err)
		}
		role := &modelRole{hash: hash, wallets: map[[20]byte]bool{}, grants: map[Selector]ActionSet{}}
		model = append(model, role)
		return role
	}
	grant := func(role *modelRole, sel Selector, actions ActionSet) {
		t.Helper()
		err := fx.engine.AddFunctionToRole(role.hash, FunctionPermission{
			Selector:            sel,
			GrantedActions:      actions,
			HandlerForSelectors: []Selector{fx.handlerSel},
		})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		role.grants[sel] = actions
	}
	ungrant := func(role *modelRole, sel Selector) {
		t.Helper()
		if err := fx.engine.RemoveFunctionFromRole(role.hash, sel); err != nil {
			t.Fatalf("ungrant: %v", err)
		}
		delete(role.grants, sel)
	}
	assign := func(role *modelRole, wallet [20]byte) {
		t.Helper()
		if err := fx.engine.AssignWallet(role.hash, wallet); err != nil {
			t.Fatalf("assign: %v", err)
		}
		role.wallets[wallet] = true
	}
	revoke := func(role *modelRole, wallet [20]byte) {
		t.Helper()
		if err := fx.engine.RevokeWallet(role.hash, wallet); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		delete(role.wallets, wallet)
	}
	replace := func(role *modelRole, newWallet, oldWallet [20]byte) {
		t.Helper()
		if err := fx.engine.UpdateAssignedWallet(role.hash, newWallet, oldWallet); err != nil {
			t.Fatalf("replace: %v", err)
		}
		delete(role.wallets, oldWallet)
		role.wallets[newWallet] = true
	}

	auditSel := register("auditLedger(bytes32)", allActions())
	rotateSel := register("rotateKeys(address)", ActionSetOf(ActionExecuteTimeDelayRequest, ActionExecuteTimeDelayApprove, ActionSignMetaApprove))
	drainSel := register("drainBuffer(uint256)", ActionSetOf(ActionSignMetaCancel, ActionExecuteMetaCancel))

	auditors := newRole("AUDITORS_ROLE", 4)
	rotators := newRole("ROTATORS_ROLE", 4)
	grant(auditors, auditSel, allActions())
	grant(auditors, rotateSel, ActionSetOf(ActionExecuteTimeDelayRequest, ActionSignMetaApprove))
	grant(rotators, rotateSel, ActionSetOf(ActionExecuteTimeDelayApprove))
	grant(rotators, drainSel, ActionSetOf(ActionSignMetaCancel, ActionExecuteMetaCancel))

	w1, w2, w3, w4 := word(70), word(71), word(72), word(73)
	assign(auditors, w1)
	assign(auditors, w2)
	assign(rotators, w2)
	assign(rotators, w3)

	// Churn before the enumeration: memberships rotate, one grant is removed
	// and a narrower one is added, and the fixture role loses a wallet.
	revoke(auditors, w1)
	assign(auditors, w4)
	replace(rotators, w1, w3)
	ungrant(auditors, rotateSel)
	grant(auditors, drainSel, ActionSetOf(ActionExecuteMetaCancel))
	revoke(ops, fx.signer)

	wallets := [][20]byte{fx.owner, fx.executor, fx.signer, fx.unassigned, w1, w2, w3, w4}
	selectors := []Selector{fx.handlerSel, fx.execSel, auditSel, rotateSel, drainSel, SelectorFromSignature("unregistered()")}
	for _, wallet := range wallets {
		for _, sel := range selectors {
			for _, action := range everyAction {
				want := false
				for _, role := range model {
					if role.wallets[wallet] && role.grants[sel].Has(action) {
						want = true
						break
					}
				}
				if got := fx.engine.HasActionPermission(wallet, sel, action); got != want {
					t.Fatalf("wallet %x selector %x action %s: got %v want %v", wallet, sel, action, got, want)
				}
			}
		}
	}
}
