package secureops

import (
	"errors"
	"testing"
)

func TestWhitelistManagement(t *testing.T) {
	fx := newFixture(t)

	if err := fx.engine.AddTargetToFunctionWhitelist(SelectorFromSignature("unknown()"), word(9)); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
	if err := fx.engine.AddTargetToFunctionWhitelist(fx.execSel, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := fx.engine.AddTargetToFunctionWhitelist(fx.execSel, fx.target); !errors.Is(err, ErrTargetAlreadyWhitelisted) {
		t.Fatalf("expected ErrTargetAlreadyWhitelisted, got %v", err)
	}
	if err := fx.engine.RemoveTargetFromFunctionWhitelist(fx.execSel, word(33)); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestWhitelistFailClosed(t *testing.T) {
	fx := newFixture(t)

	// Unknown selector and empty set both deny.
	if fx.engine.IsTargetWhitelisted(SelectorFromSignature("unknown()"), fx.target) {
		t.Fatalf("unknown selector must deny")
	}
	if err := fx.engine.RemoveTargetFromFunctionWhitelist(fx.execSel, fx.target); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fx.engine.IsTargetWhitelisted(fx.execSel, fx.target) {
		t.Fatalf("empty whitelist must deny")
	}
}

func TestWhitelistScopedPerTarget(t *testing.T) {
	fx := newFixture(t)

	if !fx.engine.IsTargetWhitelisted(fx.execSel, fx.target) {
		t.Fatalf("configured target must be allowed")
	}
	if fx.engine.IsTargetWhitelisted(fx.execSel, word(33)) {
		t.Fatalf("other targets must be denied")
	}

	if err := fx.engine.AddTargetToFunctionWhitelist(fx.execSel, word(33)); err != nil {
		t.Fatalf("add: %v", err)
	}
	targets := fx.engine.WhitelistedTargets(fx.execSel)
	if len(targets) != 2 {
		t.Fatalf("unexpected target count: %d", len(targets))
	}
	// Byte-sorted for deterministic listings.
	if targets[0] != fx.target || targets[1] != word(33) {
		t.Fatalf("unexpected target order: %x", targets)
	}
}
