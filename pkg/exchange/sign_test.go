package exchange

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSignL1ActionRoundTrip(t *testing.T) {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}

	action := MarketOrderAction(4, true, decimal.RequireFromString("0.1"))
	sig, err := SignL1Action(signer, action, 1725000000001)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Fatalf("v = %d", sig.V)
	}

	recovered, err := RecoverL1Signer(action, 1725000000001, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Fatalf("recovered %s, want %s", recovered, signer.Address())
	}
}

func TestActionDigestCommitsToNonce(t *testing.T) {
	action := MarketOrderAction(0, false, decimal.NewFromInt(2))

	d1, err := ActionDigest(action, 1)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := ActionDigest(action, 2)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(d1, d2) {
		t.Fatal("digest must change with the nonce")
	}
}

func TestActionDigestCommitsToAction(t *testing.T) {
	d1, err := ActionDigest(MarketOrderAction(0, true, decimal.NewFromInt(1)), 7)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := ActionDigest(MarketOrderAction(0, false, decimal.NewFromInt(1)), 7)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(d1, d2) {
		t.Fatal("digest must change with the action")
	}
}

func TestActionDigestDeterministic(t *testing.T) {
	action := MarketOrderAction(3, true, decimal.RequireFromString("1.5"))
	d1, err := ActionDigest(action, 42)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := ActionDigest(action, 42)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatal("digest must be deterministic for identical inputs")
	}
}

func TestNewSignerFromHexPrefixTolerant(t *testing.T) {
	raw, err := GenerateSigner()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	keyHex := raw.PrivateKeyHex()

	bare, err := NewSignerFromHex(keyHex)
	if err != nil {
		t.Fatalf("parse bare: %v", err)
	}
	prefixed, err := NewSignerFromHex("0x" + keyHex)
	if err != nil {
		t.Fatalf("parse prefixed: %v", err)
	}
	if bare.Address() != prefixed.Address() {
		t.Fatal("prefix handling changed the derived address")
	}
	if bare.Address() != raw.Address() {
		t.Fatal("round trip changed the derived address")
	}
}

func TestMarketOrderActionShape(t *testing.T) {
	action := MarketOrderAction(5, true, decimal.RequireFromString("0.2500"))

	if action.Type != "order" || action.Grouping != "na" {
		t.Fatalf("action envelope = %+v", action)
	}
	if len(action.Orders) != 1 {
		t.Fatalf("orders = %d", len(action.Orders))
	}
	o := action.Orders[0]
	if o.Asset != 5 || !o.IsBuy || o.Price != "0" || o.ReduceOnly {
		t.Fatalf("order = %+v", o)
	}
	// Trailing zeros are stripped from sizes.
	if o.Size != "0.25" {
		t.Fatalf("size = %q", o.Size)
	}
	if o.Type.Limit == nil || o.Type.Limit.Tif != "Ioc" {
		t.Fatalf("order type = %+v", o.Type)
	}
}
