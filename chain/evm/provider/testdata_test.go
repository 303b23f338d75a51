package provider

import (
	"crypto/ecdsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	chain_selectors "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/contract-admin/chain/internal/kms"
)

var (
	testAddr1      = common.HexToAddress("0xc1d6fEcd5D09Ad67cF5E0FC9633D89759DD84271")
	testChainIDBig = new(big.Int).SetUint64(chain_selectors.TEST_1000.EvmChainID)
)

var (
	testKMSKeyID       = "1234567-1234-1234-1234-123456789012"
	testKMSKeyRegion   = "ap-southeast-1"
	testKMSKeyIDAWSStr = aws.String(testKMSKeyID)
)

// testLocalKMSKey is a local secp256k1 key that produces the same DER encodings as KMS.
type testLocalKMSKey struct {
	priv *ecdsa.PrivateKey
}

func newTestLocalKMSKey(t *testing.T) *testLocalKMSKey {
	t.Helper()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &testLocalKMSKey{priv: priv}
}

// publicKeyDER returns the SubjectPublicKeyInfo encoding of the public key.
func (k *testLocalKMSKey) publicKeyDER(t *testing.T) []byte {
	t.Helper()

	pub := crypto.FromECDSAPub(&k.priv.PublicKey)
	b, err := asn1.Marshal(kms.SPKI{
		AlgorithmIdentifier: pkix.AlgorithmIdentifier{
			Algorithm: asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1},
		},
		SubjectPublicKey: asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
	})
	require.NoError(t, err)

	return b
}

// signDER signs hash and returns the signature in the DER form returned by KMS Sign.
func (k *testLocalKMSKey) signDER(t *testing.T, hash []byte) []byte {
	t.Helper()

	sig, err := crypto.Sign(hash, k.priv)
	require.NoError(t, err)

	b, err := asn1.Marshal(kms.ECDSASig{
		R: asn1.RawValue{Tag: asn1.TagInteger, Bytes: sig[:32]},
		S: asn1.RawValue{Tag: asn1.TagInteger, Bytes: sig[32:64]},
	})
	require.NoError(t, err)

	return b
}
