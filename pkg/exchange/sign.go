package exchange

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// L1 action signing. The exchange verifies an EIP-712 signature over an
// Agent struct whose connectionId commits to the action JSON and the nonce:
//
//	connectionId = keccak256(keccak256(actionJSON) || keccak256(nonce as u64 BE))
//
// Domain is fixed by the venue: chainId 1337, zero verifying contract.

const (
	l1DomainName    = "HyperLiquid"
	l1DomainVersion = "1"
	l1ChainID       = 1337
	l1AgentSource   = "a"
)

// RSV is the signature wire format the exchange expects.
type RSV struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// ActionDigest computes the EIP-712 digest committing to action and nonce.
func ActionDigest(action any, nonce uint64) ([]byte, error) {
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	actionHash := crypto.Keccak256(actionJSON)

	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	nonceHash := crypto.Keccak256(nonceBuf[:])

	connectionID := crypto.Keccak256(actionHash, nonceHash)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": []apitypes.Type{
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              l1DomainName,
			Version:           l1DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(l1ChainID)),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"source":       l1AgentSource,
			"connectionId": hexutil.Encode(connectionID),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256(rawData), nil
}

// SignL1Action signs an action for submission to the exchange.
func SignL1Action(signer *Signer, action any, nonce uint64) (RSV, error) {
	digest, err := ActionDigest(action, nonce)
	if err != nil {
		return RSV{}, err
	}
	sig, err := signer.SignHash(digest)
	if err != nil {
		return RSV{}, err
	}
	return RSV{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

// RecoverL1Signer returns the address that signed an action.
func RecoverL1Signer(action any, nonce uint64, sig RSV) (common.Address, error) {
	digest, err := ActionDigest(action, nonce)
	if err != nil {
		return common.Address{}, err
	}
	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode r: %w", err)
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode s: %w", err)
	}
	raw := make([]byte, 65)
	copy(raw[32-len(r):32], r)
	copy(raw[64-len(s):64], s)
	raw[64] = sig.V - 27
	return RecoverAddress(digest, raw)
}
