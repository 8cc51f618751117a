package quorum

import (
	bls "github.com/cloudflare/circl/sign/bls"
)

type scheme = bls.KeyG1SigG2

type PubKey = bls.PublicKey[scheme]

// shareSigner produces one node's BLS share over the agreed output.
type shareSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *PubKey
}

func newShareSigner(seed []byte) *shareSigner {
	sk, _ := bls.KeyGen[scheme](seed, nil, nil)
	return &shareSigner{sk: sk, pk: sk.PublicKey()}
}

func (s *shareSigner) Pubkey() *PubKey { return s.pk }

func (s *shareSigner) Sign(msg []byte) []byte {
	return bls.Sign(s.sk, msg)
}

// Aggregate combines same-message shares into one signature.
func Aggregate(shares [][]byte) []byte {
	sigs := make([]bls.Signature, 0, len(shares))
	for _, sb := range shares {
		if len(sb) == 0 {
			continue
		}
		sigs = append(sigs, bls.Signature(sb))
	}
	agg, err := bls.Aggregate(bls.G1{}, sigs)
	if err != nil {
		return nil
	}
	return agg
}

// VerifyAggregate checks an aggregate signature by the given nodes over one
// shared output.
func VerifyAggregate(pks []*PubKey, output, aggSig []byte) bool {
	return bls.VerifyAggregate(pks, [][]byte{output}, bls.Signature(aggSig))
}
