package custody

import "strings"

const (
	// ChainEthereum is the chain namespace access conditions are evaluated on.
	ChainEthereum = "ethereum"

	// CallerAddressParam is the placeholder the network substitutes with the
	// proven caller identity when evaluating a condition.
	CallerAddressParam = ":userAddress"

	ComparatorEqual = "="
)

// ReturnValueTest is the predicate applied to a condition's resolved value.
type ReturnValueTest struct {
	Comparator string `json:"comparator"`
	Value      string `json:"value"`
}

// AccessCondition is the release predicate the custody network evaluates
// against the caller's proven identity before reconstructing key material.
type AccessCondition struct {
	ContractAddress      string          `json:"contractAddress"`
	StandardContractType string          `json:"standardContractType"`
	Chain                string          `json:"chain"`
	Method               string          `json:"method"`
	Parameters           []string        `json:"parameters"`
	ReturnValueTest      ReturnValueTest `json:"returnValueTest"`
}

// OwnerGate builds the release condition "caller identity == owner address".
// Address syntax is not validated here; callers validate upstream.
func OwnerGate(ownerAddress string) AccessCondition {
	return AccessCondition{
		ContractAddress:      "",
		StandardContractType: "",
		Chain:                ChainEthereum,
		Method:               "",
		Parameters:           []string{CallerAddressParam},
		ReturnValueTest: ReturnValueTest{
			Comparator: ComparatorEqual,
			Value:      ownerAddress,
		},
	}
}

// Satisfied evaluates the condition against a proven caller identity.
// Only equality over the caller-address placeholder is supported; anything
// referencing contract state cannot be resolved locally and fails closed.
func (c AccessCondition) Satisfied(caller string) bool {
	if c.ContractAddress != "" || c.Method != "" {
		return false
	}
	if c.ReturnValueTest.Comparator != ComparatorEqual {
		return false
	}
	for _, p := range c.Parameters {
		if p == CallerAddressParam {
			return strings.EqualFold(c.ReturnValueTest.Value, caller)
		}
	}
	return false
}
