package secureops

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	bloxcrypto "engineblox/crypto"
)

// Domain constants bound into every signing digest. External signers compute
// the digest independently, so the scheme is versioned.
const (
	ProtocolName    = "EngineBlox"
	ProtocolVersion = "1"
)

// Canonical type strings, EIP-712 style: referenced struct types are
// appended in alphabetical order.
const (
	typeEIP712Domain = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	typeTxParams     = "TxParams(address requester,address target,uint256 value,uint256 gasLimit,bytes32 operationType,bytes4 executionSelector,bytes executionParams)"
	typePayment      = "PaymentDetails(address recipient,uint256 nativeAmount,address token,uint256 tokenAmount)"
	typeTxRecord     = "TxRecord(uint256 txId,uint256 releaseTime,TxParams params,PaymentDetails payment)" + typePayment + typeTxParams
	typeMetaParams   = "MetaTxParams(uint256 chainId,uint256 nonce,address handlerContract,bytes4 handlerSelector,uint16 action,uint256 deadline,uint256 maxGasPrice,address signer)"
	typeMetaTx       = "MetaTransaction(TxRecord txRecord,MetaTxParams params)" + typeMetaParams + typePayment + typeTxParams + typeTxRecord
)

func wordFromUint64(v uint64) [32]byte {
	return uint256.NewInt(v).Bytes32()
}

func wordFromBigInt(v *big.Int) [32]byte {
	if v == nil || v.Sign() <= 0 {
		return [32]byte{}
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		// Values above 2^256-1 cannot appear in a canonical payload; the
		// digest saturates rather than aliasing to a smaller value.
		return uint256.NewInt(0).Not(uint256.NewInt(0)).Bytes32()
	}
	return u.Bytes32()
}

func wordFromAddress(addr [20]byte) [32]byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out
}

// wordFromSelector right-pads the 4-byte selector, matching the bytes4
// encoding rule.
func wordFromSelector(sel Selector) [32]byte {
	var out [32]byte
	copy(out[:4], sel[:])
	return out
}

func hashWords(words ...[32]byte) [32]byte {
	buf := make([]byte, 0, len(words)*32)
	for _, w := range words {
		buf = append(buf, w[:]...)
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

func typeHash(typeString string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(typeString)))
	return out
}

func hashBytes(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(data))
	return out
}

// domainSeparator binds protocol name and version, the chain id and the
// verifying contract address.
func domainSeparator(chainID uint64, verifyingContract [20]byte) [32]byte {
	return hashWords(
		typeHash(typeEIP712Domain),
		hashBytes([]byte(ProtocolName)),
		hashBytes([]byte(ProtocolVersion)),
		wordFromUint64(chainID),
		wordFromAddress(verifyingContract),
	)
}

func txParamsStructHash(p TxParams) [32]byte {
	return hashWords(
		typeHash(typeTxParams),
		wordFromAddress(p.Requester),
		wordFromAddress(p.Target),
		wordFromBigInt(p.Value),
		wordFromUint64(p.GasLimit),
		[32]byte(p.OperationType),
		wordFromSelector(p.ExecutionSelector),
		hashBytes(p.ExecutionParams),
	)
}

func paymentStructHash(p PaymentDetails) [32]byte {
	return hashWords(
		typeHash(typePayment),
		wordFromAddress(p.Recipient),
		wordFromBigInt(p.NativeAmount),
		wordFromAddress(p.Token),
		wordFromBigInt(p.TokenAmount),
	)
}

func txRecordStructHash(r *TxRecord) [32]byte {
	return hashWords(
		typeHash(typeTxRecord),
		wordFromUint64(r.TxID),
		wordFromUint64(uint64(r.ReleaseTime)),
		txParamsStructHash(r.Params),
		paymentStructHash(r.Payment),
	)
}

func metaParamsStructHash(p MetaTxParams) [32]byte {
	return hashWords(
		typeHash(typeMetaParams),
		wordFromUint64(p.ChainID),
		wordFromUint64(p.Nonce),
		wordFromAddress(p.HandlerContract),
		wordFromSelector(p.HandlerSelector),
		wordFromUint64(uint64(p.Action)),
		wordFromUint64(uint64(p.Deadline)),
		wordFromBigInt(p.MaxGasPrice),
		wordFromAddress(p.Signer),
	)
}

func signedDigest(separator, structHash [32]byte) [32]byte {
	buf := make([]byte, 0, 2+64)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, separator[:]...)
	buf = append(buf, structHash[:]...)
	return hashBytes(buf)
}

// metaTxDigest computes the canonical signing digest for a record and its
// meta parameters. Identical inputs always produce the identical digest;
// any field change changes it.
func (e *Engine) metaTxDigest(record *TxRecord, params MetaTxParams) [32]byte {
	structHash := hashWords(
		typeHash(typeMetaTx),
		txRecordStructHash(record),
		metaParamsStructHash(params),
	)
	return signedDigest(domainSeparator(e.chainID, e.verifyingContract), structHash)
}

// txRecordDigest is the domain-bound digest of a record alone, stored as the
// record's canonical message at request time.
func (e *Engine) txRecordDigest(record *TxRecord) [32]byte {
	return signedDigest(domainSeparator(e.chainID, e.verifyingContract), txRecordStructHash(record))
}

// GenerateUnsignedMetaTransactionForNew builds the unsigned payload for the
// single-step request-and-approve path. The embedded record carries TxID 0;
// the engine allocates the real id when the signed payload is accepted.
// Zero-valued ChainID and HandlerContract fields default to the engine's
// own.
func (e *Engine) GenerateUnsignedMetaTransactionForNew(params TxParams, payment PaymentDetails, metaParams MetaTxParams) (*MetaTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if isZeroWord20(metaParams.Signer) {
		return nil, ErrZeroAddress
	}
	if metaParams.ChainID == 0 {
		metaParams.ChainID = e.chainID
	}
	if isZeroWord20(metaParams.HandlerContract) {
		metaParams.HandlerContract = e.verifyingContract
	}
	record := TxRecord{
		TxID:        0,
		ReleaseTime: 0,
		Status:      TxStatusPending,
		Params:      params.Clone(),
		Payment:     payment.Clone(),
	}
	metaTx := &MetaTransaction{
		TxRecord: record,
		Params:   metaParams.Clone(),
	}
	metaTx.Message = e.metaTxDigest(&metaTx.TxRecord, metaTx.Params)
	return metaTx, nil
}

// GenerateUnsignedMetaTransactionForExisting builds the unsigned payload
// approving or cancelling an existing pending transaction.
func (e *Engine) GenerateUnsignedMetaTransactionForExisting(txID uint64, metaParams MetaTxParams) (*MetaTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	record, ok := e.state.record(txID)
	if !ok {
		return nil, ErrTxNotFound
	}
	if isZeroWord20(metaParams.Signer) {
		return nil, ErrZeroAddress
	}
	if metaParams.ChainID == 0 {
		metaParams.ChainID = e.chainID
	}
	if isZeroWord20(metaParams.HandlerContract) {
		metaParams.HandlerContract = e.verifyingContract
	}
	metaTx := &MetaTransaction{
		TxRecord: *record.Clone(),
		Params:   metaParams.Clone(),
	}
	metaTx.Message = e.metaTxDigest(record, metaTx.Params)
	return metaTx, nil
}

// SignMetaTransaction signs the payload's digest with the given key and
// attaches the signature. Intended for clients and tests; the engine itself
// only verifies.
func SignMetaTransaction(metaTx *MetaTransaction, key *bloxcrypto.PrivateKey) error {
	if metaTx == nil {
		return ErrNilRecord
	}
	sig, err := key.Sign(metaTx.Message[:])
	if err != nil {
		return err
	}
	metaTx.Signature = sig
	return nil
}

// rejectReason labels a verification failure for observability consumers.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "signature"
	case errors.Is(err, ErrMetaTxExpired):
		return "expired"
	case errors.Is(err, ErrGasPriceExceedsMax):
		return "gas_price"
	case errors.Is(err, ErrChainIDMismatch):
		return "chain_id"
	case errors.Is(err, ErrInvalidNonce):
		return "nonce"
	case errors.Is(err, ErrHandlerMismatch):
		return "handler"
	case errors.Is(err, ErrSchemaNotFound):
		return "schema"
	case errors.Is(err, ErrSignerNotAuthorized):
		return "signer_permission"
	case errors.Is(err, ErrExecutorNotAuthorized):
		return "executor_permission"
	default:
		return "other"
	}
}

// verifyMetaTxLocked validates a signed payload against the stored record,
// in the documented order: signature recovery, deadline, gas price, chain
// id, nonce (consumed on success of this step), handler binding, then the
// dual signer/executor permission check. The digest is always recomputed
// from the stored record, never trusted from caller input.
func (e *Engine) verifyMetaTxLocked(record *TxRecord, metaTx *MetaTransaction, executor [20]byte, signAction, execAction Action) error {
	digest := e.metaTxDigest(record, metaTx.Params)
	metaTx.Message = digest

	recovered, err := bloxcrypto.RecoverAddress(digest[:], metaTx.Signature)
	if err != nil || isZeroWord20(recovered) || recovered != metaTx.Params.Signer {
		return ErrInvalidSignature
	}
	if e.now().Unix() > metaTx.Params.Deadline {
		return ErrMetaTxExpired
	}
	if metaTx.Params.MaxGasPrice != nil && metaTx.Params.MaxGasPrice.Sign() > 0 && e.gasPriceFn != nil {
		if current := e.gasPriceFn(); current != nil && current.Cmp(metaTx.Params.MaxGasPrice) > 0 {
			return ErrGasPriceExceedsMax
		}
	}
	if metaTx.Params.ChainID != e.chainID {
		return ErrChainIDMismatch
	}
	if metaTx.Params.Nonce != e.state.Nonces[metaTx.Params.Signer] {
		return ErrInvalidNonce
	}
	// One-shot use: the nonce is consumed here, so a failed later check
	// invalidates the payload and the signer must produce a fresh one.
	e.state.Nonces[metaTx.Params.Signer] = metaTx.Params.Nonce + 1

	if metaTx.Params.HandlerContract != e.verifyingContract {
		return ErrHandlerMismatch
	}
	if metaTx.Params.Action != signAction {
		return ErrHandlerMismatch
	}
	schema, ok := e.state.schema(record.Params.ExecutionSelector)
	if !ok {
		return ErrSchemaNotFound
	}
	if !schema.HandlesSelector(metaTx.Params.HandlerSelector) {
		return ErrHandlerMismatch
	}
	if !e.hasActionPermissionLocked(recovered, metaTx.Params.HandlerSelector, signAction) {
		return ErrSignerNotAuthorized
	}
	if !e.hasActionPermissionLocked(executor, metaTx.Params.HandlerSelector, execAction) {
		return ErrExecutorNotAuthorized
	}
	return nil
}
