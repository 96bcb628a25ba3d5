package secureops

// AddTargetToFunctionWhitelist allow-lists a target address for an execution
// selector. Adding a target twice fails with a duplicate error rather than
// silently succeeding, so operator tooling notices redundant grants.
func (e *Engine) AddTargetToFunctionWhitelist(selector Selector, target [20]byte) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if isZeroWord20(target) {
		return ErrZeroAddress
	}
	if _, ok := e.state.schema(selector); !ok {
		return ErrSchemaNotFound
	}
	set := e.state.Whitelist[selector]
	if set == nil {
		set = make(map[[20]byte]struct{})
		e.state.Whitelist[selector] = set
	}
	if _, exists := set[target]; exists {
		return ErrTargetAlreadyWhitelisted
	}
	set[target] = struct{}{}
	return nil
}

// RemoveTargetFromFunctionWhitelist removes a target from an execution
// selector's allow-list. Removing a non-member fails.
func (e *Engine) RemoveTargetFromFunctionWhitelist(selector Selector, target [20]byte) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	set := e.state.Whitelist[selector]
	if set == nil {
		return ErrTargetNotFound
	}
	if _, exists := set[target]; !exists {
		return ErrTargetNotFound
	}
	delete(set, target)
	return nil
}

// IsTargetWhitelisted reports whether the target may be called when the
// selector's execution is dispatched. An empty or absent whitelist denies
// every target.
func (e *Engine) IsTargetWhitelisted(selector Selector, target [20]byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isTargetWhitelistedLocked(selector, target)
}

func (e *Engine) isTargetWhitelistedLocked(selector Selector, target [20]byte) bool {
	set := e.state.Whitelist[selector]
	if len(set) == 0 {
		return false
	}
	_, ok := set[target]
	return ok
}

// WhitelistedTargets returns the allow-listed targets for a selector in
// byte order.
func (e *Engine) WhitelistedTargets(selector Selector) [][20]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.WhitelistedTargets(selector)
}
