package secureops

import "strings"

// CreateFunctionSchema registers a function schema under an operation type
// tag and its display name. Integrity is enforced here, at registration
// time: a malformed definition fails loudly instead of becoming a usable
// permission surface. The tag is usually derived from the name via
// OperationTypeFromName, but callers may supply any 32-byte tag; registering
// the same tag under two different names is rejected.
func (e *Engine) CreateFunctionSchema(signature string, selector Selector, operationType OperationType, operationName string, actions ActionSet, protected bool, handlerForSelectors []Selector) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return e.createFunctionSchemaLocked(signature, selector, operationType, operationName, actions, protected, handlerForSelectors)
}

func (e *Engine) createFunctionSchemaLocked(signature string, selector Selector, operationType OperationType, operationName string, actions ActionSet, protected bool, handlerForSelectors []Selector) error {
	trimmedSig := strings.TrimSpace(signature)
	trimmedOp := strings.TrimSpace(operationName)
	if trimmedSig == "" || trimmedOp == "" {
		return ErrEmptyName
	}
	if _, exists := e.state.schema(selector); exists {
		return ErrSchemaExists
	}
	if derived := SelectorFromSignature(trimmedSig); derived != selector {
		return ErrSelectorMismatch
	}
	if len(handlerForSelectors) == 0 {
		return ErrEmptyHandlerList
	}
	if actions.IsEmpty() {
		return ErrActionsEmpty
	}
	// A selector that exists in this binary's dispatch surface but is left
	// unprotected would be a removable schema guarding a live entry point.
	if !protected && e.registry.Contains(selector) {
		return ErrUnprotectedDispatchable
	}
	if existing, ok := e.state.OperationTypes[operationType]; ok && existing != trimmedOp {
		return ErrOperationTypeConflict
	}
	schema := &FunctionSchema{
		Signature:           trimmedSig,
		Selector:            selector,
		OperationType:       operationType,
		OperationName:       trimmedOp,
		SupportedActions:    actions,
		Protected:           protected,
		HandlerForSelectors: append([]Selector(nil), handlerForSelectors...),
	}
	e.state.Schemas[selector] = schema
	e.state.SupportedFunctions = append(e.state.SupportedFunctions, selector)
	e.state.OperationTypes[operationType] = trimmedOp
	return nil
}

// RemoveFunctionSchema deletes an unprotected schema. With safeRemoval set,
// removal additionally fails while any role still references the selector,
// forcing explicit permission cleanup first.
func (e *Engine) RemoveFunctionSchema(selector Selector, safeRemoval bool) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	schema, ok := e.state.schema(selector)
	if !ok {
		return ErrSchemaNotFound
	}
	if schema.Protected {
		return ErrSchemaProtected
	}
	if safeRemoval {
		for _, hash := range e.state.SupportedRoles {
			role, ok := e.state.role(hash)
			if !ok {
				continue
			}
			if _, referenced := role.Permissions[selector]; referenced {
				return ErrSchemaInUse
			}
		}
	}
	delete(e.state.Schemas, selector)
	for i, sel := range e.state.SupportedFunctions {
		if sel == selector {
			e.state.SupportedFunctions = append(e.state.SupportedFunctions[:i], e.state.SupportedFunctions[i+1:]...)
			break
		}
	}
	return nil
}

// CreateRole registers a new role and returns its hash.
func (e *Engine) CreateRole(name string, maxWallets uint32, protected bool) (RoleHash, error) {
	if err := e.lockMutating(); err != nil {
		return RoleHash{}, err
	}
	defer e.mu.Unlock()
	return e.createRoleLocked(name, maxWallets, protected)
}

func (e *Engine) createRoleLocked(name string, maxWallets uint32, protected bool) (RoleHash, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return RoleHash{}, ErrEmptyName
	}
	if maxWallets == 0 {
		return RoleHash{}, ErrZeroMaxWallets
	}
	hash := RoleHashFromName(trimmed)
	if _, exists := e.state.role(hash); exists {
		return RoleHash{}, ErrRoleExists
	}
	e.state.Roles[hash] = &Role{
		Name:        trimmed,
		Hash:        hash,
		MaxWallets:  maxWallets,
		Protected:   protected,
		Permissions: make(map[Selector]FunctionPermission),
	}
	e.state.SupportedRoles = append(e.state.SupportedRoles, hash)
	return hash, nil
}

// RemoveRole deletes a role. Protected roles are permanent, and a role must
// be emptied of wallets before removal.
func (e *Engine) RemoveRole(hash RoleHash) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	role, ok := e.state.role(hash)
	if !ok {
		return ErrRoleNotFound
	}
	if role.Protected {
		return ErrRoleProtected
	}
	if role.WalletCount() > 0 {
		return ErrRoleNotEmpty
	}
	delete(e.state.Roles, hash)
	for i, h := range e.state.SupportedRoles {
		if h == hash {
			e.state.SupportedRoles = append(e.state.SupportedRoles[:i], e.state.SupportedRoles[i+1:]...)
			break
		}
	}
	return nil
}

// AddFunctionToRole grants a role a permission on a registered schema. The
// permission's handler relationship must match the schema exactly so a
// handler grant can never be confused with an execution grant.
func (e *Engine) AddFunctionToRole(hash RoleHash, permission FunctionPermission) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return e.addFunctionToRoleLocked(hash, permission)
}

func (e *Engine) addFunctionToRoleLocked(hash RoleHash, permission FunctionPermission) error {
	role, ok := e.state.role(hash)
	if !ok {
		return ErrRoleNotFound
	}
	schema, ok := e.state.schema(permission.Selector)
	if !ok {
		return ErrSchemaNotFound
	}
	if permission.GrantedActions.IsEmpty() {
		return ErrActionsEmpty
	}
	if !permission.GrantedActions.IsSubsetOf(schema.SupportedActions) {
		return ErrActionNotSupported
	}
	if !selectorsEqual(permission.HandlerForSelectors, schema.HandlerForSelectors) {
		return ErrHandlerRelationMismatch
	}
	if _, exists := role.Permissions[permission.Selector]; exists {
		return ErrPermissionExists
	}
	role.Permissions[permission.Selector] = permission.Clone()
	return nil
}

// RemoveFunctionFromRole revokes a role's permission on a selector. For a
// protected role the last permission cannot be removed, so system roles
// always retain a way to reconfigure themselves.
func (e *Engine) RemoveFunctionFromRole(hash RoleHash, selector Selector) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	role, ok := e.state.role(hash)
	if !ok {
		return ErrRoleNotFound
	}
	if _, exists := role.Permissions[selector]; !exists {
		return ErrPermissionNotFound
	}
	if role.Protected && len(role.Permissions) == 1 {
		return ErrRoleProtected
	}
	delete(role.Permissions, selector)
	return nil
}

// SchemaDefinition is one entry of a bulk definition load.
type SchemaDefinition struct {
	Signature           string
	Selector            Selector
	OperationType       OperationType
	OperationName       string
	Actions             ActionSet
	Protected           bool
	HandlerForSelectors []Selector
}

// LoadDefinitions registers schemas first and then role permissions, in that
// order, so permissions can never reference an unregistered schema. The
// roleHashes and permissions slices are parallel.
func (e *Engine) LoadDefinitions(schemas []SchemaDefinition, roleHashes []RoleHash, permissions []FunctionPermission) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if len(roleHashes) != len(permissions) {
		return ErrLengthMismatch
	}
	for _, def := range schemas {
		if err := e.createFunctionSchemaLocked(def.Signature, def.Selector, def.OperationType, def.OperationName, def.Actions, def.Protected, def.HandlerForSelectors); err != nil {
			return err
		}
	}
	for i, hash := range roleHashes {
		if err := e.addFunctionToRoleLocked(hash, permissions[i]); err != nil {
			return err
		}
	}
	return nil
}

func selectorsEqual(a, b []Selector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
