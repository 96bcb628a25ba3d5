package secureops

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	bloxcrypto "engineblox/crypto"
)

// DefinitionsFile is the operator-authored bundle of schemas, roles and
// permission grants loaded at startup or during runtime extension. Schemas
// are always applied before permissions.
type DefinitionsFile struct {
	Schemas []SchemaDefinitionYAML `yaml:"schemas"`
	Roles   []RoleDefinitionYAML   `yaml:"roles"`
	Grants  []GrantDefinitionYAML  `yaml:"grants"`
}

// SchemaDefinitionYAML declares one function schema. The selector is
// re-derived from the signature and cross-checked when present.
type SchemaDefinitionYAML struct {
	Signature     string   `yaml:"signature"`
	Selector      string   `yaml:"selector,omitempty"`
	OperationName string   `yaml:"operationName"`
	Actions       []string `yaml:"actions"`
	Protected     bool     `yaml:"protected"`
	Handlers      []string `yaml:"handlers"`
}

// RoleDefinitionYAML declares one non-system role.
type RoleDefinitionYAML struct {
	Name       string   `yaml:"name"`
	MaxWallets uint32   `yaml:"maxWallets"`
	Protected  bool     `yaml:"protected"`
	Wallets    []string `yaml:"wallets,omitempty"`
}

// GrantDefinitionYAML grants a role a set of actions on a selector.
type GrantDefinitionYAML struct {
	Role     string   `yaml:"role"`
	Selector string   `yaml:"selector,omitempty"`
	Function string   `yaml:"function,omitempty"`
	Actions  []string `yaml:"actions"`
	Handlers []string `yaml:"handlers"`
}

func parseActionNames(names []string) (ActionSet, error) {
	var set ActionSet
	for _, name := range names {
		action, err := ParseAction(name)
		if err != nil {
			return 0, err
		}
		set |= ActionSet(action)
	}
	return set, nil
}

func parseSelectorRef(selectorHex, signature string) (Selector, error) {
	if sig := strings.TrimSpace(signature); sig != "" {
		derived := SelectorFromSignature(sig)
		if trimmed := strings.TrimSpace(selectorHex); trimmed != "" {
			explicit, err := ParseSelector(trimmed)
			if err != nil {
				return Selector{}, err
			}
			if explicit != derived {
				return Selector{}, ErrSelectorMismatch
			}
		}
		return derived, nil
	}
	return ParseSelector(selectorHex)
}

// ParseDefinitions decodes a YAML definitions document.
func ParseDefinitions(raw []byte) (*DefinitionsFile, error) {
	var file DefinitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("secureops: invalid definitions document: %w", err)
	}
	return &file, nil
}

// ApplyDefinitionsFile loads a definitions bundle into the engine: roles
// first, then schemas, then grants, so every grant references registered
// material. Wallet assignments listed on roles are applied last.
func (e *Engine) ApplyDefinitionsFile(file *DefinitionsFile) error {
	if file == nil {
		return fmt.Errorf("secureops: nil definitions file")
	}
	type pendingWallet struct {
		role   RoleHash
		wallet [20]byte
	}
	var wallets []pendingWallet
	for _, role := range file.Roles {
		hash, err := e.CreateRole(role.Name, role.MaxWallets, role.Protected)
		if err != nil {
			return fmt.Errorf("secureops: role %q: %w", role.Name, err)
		}
		for _, encoded := range role.Wallets {
			wallet, err := decodeDefinitionWallet(encoded)
			if err != nil {
				return fmt.Errorf("secureops: role %q wallet: %w", role.Name, err)
			}
			wallets = append(wallets, pendingWallet{role: hash, wallet: wallet})
		}
	}
	schemas := make([]SchemaDefinition, 0, len(file.Schemas))
	for _, schema := range file.Schemas {
		sel, err := parseSelectorRef(schema.Selector, schema.Signature)
		if err != nil {
			return fmt.Errorf("secureops: schema %q: %w", schema.Signature, err)
		}
		actions, err := parseActionNames(schema.Actions)
		if err != nil {
			return fmt.Errorf("secureops: schema %q: %w", schema.Signature, err)
		}
		handlers, err := parseSelectorRefs(schema.Handlers)
		if err != nil {
			return fmt.Errorf("secureops: schema %q: %w", schema.Signature, err)
		}
		schemas = append(schemas, SchemaDefinition{
			Signature:           schema.Signature,
			Selector:            sel,
			OperationType:       OperationTypeFromName(strings.TrimSpace(schema.OperationName)),
			OperationName:       schema.OperationName,
			Actions:             actions,
			Protected:           schema.Protected,
			HandlerForSelectors: handlers,
		})
	}
	roleHashes := make([]RoleHash, 0, len(file.Grants))
	permissions := make([]FunctionPermission, 0, len(file.Grants))
	for _, grant := range file.Grants {
		sel, err := parseSelectorRef(grant.Selector, grant.Function)
		if err != nil {
			return fmt.Errorf("secureops: grant for role %q: %w", grant.Role, err)
		}
		actions, err := parseActionNames(grant.Actions)
		if err != nil {
			return fmt.Errorf("secureops: grant for role %q: %w", grant.Role, err)
		}
		handlers, err := parseSelectorRefs(grant.Handlers)
		if err != nil {
			return fmt.Errorf("secureops: grant for role %q: %w", grant.Role, err)
		}
		roleHashes = append(roleHashes, RoleHashFromName(strings.TrimSpace(grant.Role)))
		permissions = append(permissions, FunctionPermission{
			Selector:            sel,
			GrantedActions:      actions,
			HandlerForSelectors: handlers,
		})
	}
	if err := e.LoadDefinitions(schemas, roleHashes, permissions); err != nil {
		return err
	}
	for _, entry := range wallets {
		if err := e.AssignWallet(entry.role, entry.wallet); err != nil {
			return err
		}
	}
	return nil
}

// LoadDefinitionsFile reads and applies a YAML definitions bundle from disk.
func (e *Engine) LoadDefinitionsFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("secureops: read definitions: %w", err)
	}
	file, err := ParseDefinitions(raw)
	if err != nil {
		return err
	}
	return e.ApplyDefinitionsFile(file)
}

func parseSelectorRefs(refs []string) ([]Selector, error) {
	out := make([]Selector, 0, len(refs))
	for _, ref := range refs {
		trimmed := strings.TrimSpace(ref)
		var (
			sel Selector
			err error
		)
		if strings.Contains(trimmed, "(") {
			sel = SelectorFromSignature(trimmed)
		} else {
			sel, err = ParseSelector(trimmed)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

func decodeDefinitionWallet(encoded string) ([20]byte, error) {
	addr, err := bloxcrypto.DecodeAddress(encoded)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Word(), nil
}
