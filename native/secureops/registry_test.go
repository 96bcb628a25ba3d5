package secureops

import (
	"errors"
	"testing"
)

func TestCreateFunctionSchemaValidation(t *testing.T) {
	fx := newFixture(t)
	sig := "pauseOperations()"
	sel := SelectorFromSignature(sig)
	pause := OperationTypeFromName("PAUSE")

	if err := fx.engine.CreateFunctionSchema("", sel, pause, "PAUSE", allActions(), false, []Selector{fx.handlerSel}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName for empty signature, got %v", err)
	}
	if err := fx.engine.CreateFunctionSchema(sig, sel, pause, "", allActions(), false, []Selector{fx.handlerSel}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName for empty operation name, got %v", err)
	}
	if err := fx.engine.CreateFunctionSchema(sig, SelectorFromSignature("other()"), pause, "PAUSE", allActions(), false, []Selector{fx.handlerSel}); !errors.Is(err, ErrSelectorMismatch) {
		t.Fatalf("expected ErrSelectorMismatch, got %v", err)
	}
	if err := fx.engine.CreateFunctionSchema(sig, sel, pause, "PAUSE", allActions(), false, nil); !errors.Is(err, ErrEmptyHandlerList) {
		t.Fatalf("expected ErrEmptyHandlerList, got %v", err)
	}
	if err := fx.engine.CreateFunctionSchema(sig, sel, pause, "PAUSE", 0, false, []Selector{fx.handlerSel}); !errors.Is(err, ErrActionsEmpty) {
		t.Fatalf("expected ErrActionsEmpty, got %v", err)
	}

	// Nothing registered after all the rejections.
	if _, err := fx.engine.GetFunctionSchema(sel); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("rejected schema must not be registered, got %v", err)
	}

	if err := fx.engine.CreateFunctionSchema(sig, sel, pause, "PAUSE", allActions(), false, []Selector{fx.handlerSel}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.engine.CreateFunctionSchema(sig, sel, pause, "PAUSE", allActions(), false, []Selector{fx.handlerSel}); !errors.Is(err, ErrSchemaExists) {
		t.Fatalf("expected ErrSchemaExists, got %v", err)
	}
}

func TestCreateFunctionSchemaOperationTypeConflict(t *testing.T) {
	fx := newFixture(t)
	tag := OperationTypeFromName("LIMITS")

	firstSig := "setDailyLimit(uint256)"
	if err := fx.engine.CreateFunctionSchema(firstSig, SelectorFromSignature(firstSig), tag, "LIMITS", allActions(), false, []Selector{fx.handlerSel}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The same tag under a different name is rejected.
	secondSig := "setWeeklyLimit(uint256)"
	if err := fx.engine.CreateFunctionSchema(secondSig, SelectorFromSignature(secondSig), tag, "OTHER_LIMITS", allActions(), false, []Selector{fx.handlerSel}); !errors.Is(err, ErrOperationTypeConflict) {
		t.Fatalf("expected ErrOperationTypeConflict, got %v", err)
	}

	// Sharing the tag under the same name groups schemas, as the fixture's
	// handler and execution schemas already do.
	if err := fx.engine.CreateFunctionSchema(secondSig, SelectorFromSignature(secondSig), tag, "LIMITS", allActions(), false, []Selector{fx.handlerSel}); err != nil {
		t.Fatalf("same name must share the tag: %v", err)
	}
}

func TestCreateFunctionSchemaUnprotectedDispatchable(t *testing.T) {
	fx := newFixture(t)

	// The execution signature is part of the dispatch surface, so its schema
	// must be protected.
	sig := "wipeLedger()"
	sel := fx.engine.Dispatch().RegisterEntryPoint(sig)
	if err := fx.engine.CreateFunctionSchema(sig, sel, OperationTypeFromName("WIPE"), "WIPE", allActions(), false, []Selector{fx.handlerSel}); !errors.Is(err, ErrUnprotectedDispatchable) {
		t.Fatalf("expected ErrUnprotectedDispatchable, got %v", err)
	}
	if err := fx.engine.CreateFunctionSchema(sig, sel, OperationTypeFromName("WIPE"), "WIPE", allActions(), true, []Selector{fx.handlerSel}); err != nil {
		t.Fatalf("protected registration must succeed: %v", err)
	}
}

func TestRemoveFunctionSchema(t *testing.T) {
	fx := newFixture(t)

	if err := fx.engine.RemoveFunctionSchema(fx.execSel, false); !errors.Is(err, ErrSchemaProtected) {
		t.Fatalf("expected ErrSchemaProtected, got %v", err)
	}

	sig := "tuneParameters(uint256)"
	sel := SelectorFromSignature(sig)
	if err := fx.engine.CreateFunctionSchema(sig, sel, OperationTypeFromName("TUNE"), "TUNE", allActions(), false, []Selector{fx.handlerSel}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.engine.AddFunctionToRole(fx.opsRole, FunctionPermission{
		Selector:            sel,
		GrantedActions:      ActionSetOf(ActionExecuteTimeDelayApprove),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := fx.engine.RemoveFunctionSchema(sel, true); !errors.Is(err, ErrSchemaInUse) {
		t.Fatalf("expected ErrSchemaInUse under safe removal, got %v", err)
	}
	if err := fx.engine.RemoveFunctionFromRole(fx.opsRole, sel); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := fx.engine.RemoveFunctionSchema(sel, true); err != nil {
		t.Fatalf("safe removal after cleanup: %v", err)
	}
	if _, err := fx.engine.GetFunctionSchema(sel); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("schema still registered after removal")
	}
	for _, registered := range fx.engine.SupportedFunctionSelectors() {
		if registered == sel {
			t.Fatalf("selector still listed after removal")
		}
	}
}

func TestCreateAndRemoveRole(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.CreateRole("  ", 2, false); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := fx.engine.CreateRole("AUDITOR_ROLE", 0, false); !errors.Is(err, ErrZeroMaxWallets) {
		t.Fatalf("expected ErrZeroMaxWallets, got %v", err)
	}
	if _, err := fx.engine.CreateRole("OPS_ROLE", 2, false); !errors.Is(err, ErrRoleExists) {
		t.Fatalf("expected ErrRoleExists, got %v", err)
	}

	hash, err := fx.engine.CreateRole("AUDITOR_ROLE", 2, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.engine.AssignWallet(hash, word(40)); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := fx.engine.RemoveRole(hash); !errors.Is(err, ErrRoleNotEmpty) {
		t.Fatalf("expected ErrRoleNotEmpty, got %v", err)
	}
	if err := fx.engine.RevokeWallet(hash, word(40)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := fx.engine.RemoveRole(hash); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := fx.engine.RemoveRole(RoleHashFromName(OwnerRoleName)); !errors.Is(err, ErrRoleProtected) {
		t.Fatalf("expected ErrRoleProtected, got %v", err)
	}
	if err := fx.engine.RemoveRole(RoleHashFromName("NO_SUCH_ROLE")); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestAddFunctionToRoleValidation(t *testing.T) {
	fx := newFixture(t)

	perm := FunctionPermission{
		Selector:            fx.execSel,
		GrantedActions:      ActionSetOf(ActionExecuteTimeDelayApprove),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}
	if err := fx.engine.AddFunctionToRole(RoleHashFromName("NO_SUCH_ROLE"), perm); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	unknown := perm
	unknown.Selector = SelectorFromSignature("unknown()")
	if err := fx.engine.AddFunctionToRole(fx.opsRole, unknown); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}

	empty := perm
	empty.GrantedActions = 0
	if err := fx.engine.AddFunctionToRole(fx.opsRole, empty); !errors.Is(err, ErrActionsEmpty) {
		t.Fatalf("expected ErrActionsEmpty, got %v", err)
	}

	// Granting outside the schema's supported set fails.
	narrowSig := "rotateKeys()"
	narrowSel := SelectorFromSignature(narrowSig)
	if err := fx.engine.CreateFunctionSchema(narrowSig, narrowSel, OperationTypeFromName("ROTATE"), "ROTATE", ActionSetOf(ActionExecuteTimeDelayRequest), false, []Selector{fx.handlerSel}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tooBroad := FunctionPermission{
		Selector:            narrowSel,
		GrantedActions:      ActionSetOf(ActionExecuteTimeDelayRequest, ActionExecuteTimeDelayApprove),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}
	if err := fx.engine.AddFunctionToRole(fx.opsRole, tooBroad); !errors.Is(err, ErrActionNotSupported) {
		t.Fatalf("expected ErrActionNotSupported, got %v", err)
	}

	mismatch := perm
	mismatch.HandlerForSelectors = []Selector{fx.execSel}
	if err := fx.engine.AddFunctionToRole(fx.opsRole, mismatch); !errors.Is(err, ErrHandlerRelationMismatch) {
		t.Fatalf("expected ErrHandlerRelationMismatch, got %v", err)
	}

	// The ops role already holds a permission on the execution selector.
	if err := fx.engine.AddFunctionToRole(fx.opsRole, perm); !errors.Is(err, ErrPermissionExists) {
		t.Fatalf("expected ErrPermissionExists, got %v", err)
	}
}

func TestRemoveFunctionFromRole(t *testing.T) {
	fx := newFixture(t)

	if err := fx.engine.RemoveFunctionFromRole(fx.opsRole, SelectorFromSignature("unknown()")); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
	if err := fx.engine.RemoveFunctionFromRole(fx.opsRole, fx.execSel); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fx.engine.HasActionPermission(fx.owner, fx.execSel, ActionExecuteTimeDelayApprove) {
		t.Fatalf("permission still effective after removal")
	}

	// A protected role keeps its last permission.
	ownerHash, err := fx.engine.CreateRole("GUARDED_ROLE", 1, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.engine.AddFunctionToRole(ownerHash, FunctionPermission{
		Selector:            fx.handlerSel,
		GrantedActions:      ActionSetOf(ActionExecuteTimeDelayRequest),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := fx.engine.RemoveFunctionFromRole(ownerHash, fx.handlerSel); !errors.Is(err, ErrRoleProtected) {
		t.Fatalf("expected ErrRoleProtected, got %v", err)
	}
}

func TestLoadDefinitions(t *testing.T) {
	fx := newFixture(t)

	sig := "setDailyLimit(uint256)"
	sel := SelectorFromSignature(sig)
	schemas := []SchemaDefinition{{
		Signature:           sig,
		Selector:            sel,
		OperationType:       OperationTypeFromName("LIMITS"),
		OperationName:       "LIMITS",
		Actions:             allActions(),
		Protected:           false,
		HandlerForSelectors: []Selector{fx.handlerSel},
	}}
	perms := []FunctionPermission{{
		Selector:            sel,
		GrantedActions:      ActionSetOf(ActionExecuteTimeDelayRequest),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}}

	if err := fx.engine.LoadDefinitions(schemas, []RoleHash{fx.opsRole, fx.opsRole}, perms); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if err := fx.engine.LoadDefinitions(schemas, []RoleHash{fx.opsRole}, perms); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !fx.engine.HasActionPermission(fx.owner, sel, ActionExecuteTimeDelayRequest) {
		t.Fatalf("loaded permission not effective")
	}

	// Schemas register before permissions, so a bad schema stops the load
	// before any grant lands.
	badSig := "badEntry()"
	bad := []SchemaDefinition{{
		Signature:           badSig,
		Selector:            SelectorFromSignature("different()"),
		OperationType:       OperationTypeFromName("BAD"),
		OperationName:       "BAD",
		Actions:             allActions(),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}}
	badPerm := []FunctionPermission{{
		Selector:            SelectorFromSignature(badSig),
		GrantedActions:      allActions(),
		HandlerForSelectors: []Selector{fx.handlerSel},
	}}
	if err := fx.engine.LoadDefinitions(bad, []RoleHash{fx.opsRole}, badPerm); !errors.Is(err, ErrSelectorMismatch) {
		t.Fatalf("expected ErrSelectorMismatch, got %v", err)
	}
}
