package provider

import (
	"encoding/asn1"
	"math/big"
	"testing"

	kmslib "github.com/aws/aws-sdk-go/service/kms"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/contract-admin/chain/internal/kms"
	kmsmocks "github.com/smartcontractkit/contract-admin/chain/internal/kms/mocks"
)

// signsWith makes the mock KMS sign every digest with the local key.
func signsWith(t *testing.T, key *testLocalKMSKey) func(*kmslib.SignInput) (*kmslib.SignOutput, error) {
	t.Helper()

	return func(in *kmslib.SignInput) (*kmslib.SignOutput, error) {
		return &kmslib.SignOutput{Signature: key.signDER(t, in.Message)}, nil
	}
}

// pauseTx is the unsigned admin transaction the signer tests sign.
func pauseTx() *types.Transaction {
	to := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   testChainIDBig,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       60_000,
		To:        &to,
		Data:      crypto.Keccak256([]byte("pause()"))[:4],
	})
}

func Test_NewKMSSigner(t *testing.T) {
	t.Parallel()

	_, err := NewKMSSigner("", testKMSKeyRegion, "")
	require.ErrorContains(t, err, "failed to initialize KMS Client")

	signer, err := NewKMSSigner(testKMSKeyID, testKMSKeyRegion, "")
	require.NoError(t, err)
	assert.Equal(t, testKMSKeyID, signer.kmsKeyID)
}

func Test_KMSSigner_GetAddress(t *testing.T) {
	t.Parallel()

	key := newTestLocalKMSKey(t)

	tests := []struct {
		name       string
		beforeFunc func(*kmsmocks.MockClient)
		wantErr    string
	}{
		{
			name: "public key is fetched once",
			beforeFunc: func(c *kmsmocks.MockClient) {
				c.EXPECT().
					GetPublicKey(&kmslib.GetPublicKeyInput{KeyId: testKMSKeyIDAWSStr}).
					Return(&kmslib.GetPublicKeyOutput{PublicKey: key.publicKeyDER(t)}, nil).
					Once()
			},
		},
		{
			name: "KMS unavailable",
			beforeFunc: func(c *kmsmocks.MockClient) {
				c.EXPECT().
					GetPublicKey(mock.Anything).
					Return(nil, assert.AnError)
			},
			wantErr: "cannot get public key from KMS",
		},
		{
			name: "public key is not DER",
			beforeFunc: func(c *kmsmocks.MockClient) {
				c.EXPECT().
					GetPublicKey(mock.Anything).
					Return(&kmslib.GetPublicKeyOutput{PublicKey: []byte("not der")}, nil)
			},
			wantErr: "cannot parse asn1 public key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := kmsmocks.NewMockClient(t)
			tt.beforeFunc(client)
			signer := &KMSSigner{client: client, kmsKeyID: testKMSKeyID}

			addr, err := signer.GetAddress()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, crypto.PubkeyToAddress(key.priv.PublicKey), addr)

			again, err := signer.GetAddress()
			require.NoError(t, err)
			assert.Equal(t, addr, again)
		})
	}
}

func Test_KMSSigner_GetTransactOpts(t *testing.T) {
	t.Parallel()

	key := newTestLocalKMSKey(t)
	from := crypto.PubkeyToAddress(key.priv.PublicKey)

	tests := []struct {
		name       string
		giveFrom   common.Address
		signFunc   func(*kmslib.SignInput) (*kmslib.SignOutput, error)
		wantErr    string
		wantErrIs  error
		wantSigned bool
	}{
		{
			name:       "signs an admin transaction",
			giveFrom:   from,
			signFunc:   signsWith(t, key),
			wantSigned: true,
		},
		{
			name:      "other sender",
			giveFrom:  testAddr1,
			wantErrIs: bind.ErrNotAuthorized,
		},
		{
			name:     "sign call fails",
			giveFrom: from,
			signFunc: func(*kmslib.SignInput) (*kmslib.SignOutput, error) {
				return nil, assert.AnError
			},
			wantErr: "call to kms.Sign() failed",
		},
		{
			name:     "signature is not DER",
			giveFrom: from,
			signFunc: func(*kmslib.SignInput) (*kmslib.SignOutput, error) {
				return &kmslib.SignOutput{Signature: []byte{0x01}}, nil
			},
			wantErr: "failed to unmarshal KMS signature",
		},
		{
			name:     "signature of another key",
			giveFrom: from,
			signFunc: signsWith(t, newTestLocalKMSKey(t)),
			wantErr:  "cannot reconstruct public key from sig",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := kmsmocks.NewMockClient(t)
			client.EXPECT().
				GetPublicKey(mock.Anything).
				Return(&kmslib.GetPublicKeyOutput{PublicKey: key.publicKeyDER(t)}, nil)
			if tt.signFunc != nil {
				client.EXPECT().
					Sign(mock.MatchedBy(func(in *kmslib.SignInput) bool {
						return *in.KeyId == testKMSKeyID &&
							*in.MessageType == kmslib.MessageTypeDigest
					})).
					RunAndReturn(tt.signFunc)
			}

			signer := &KMSSigner{client: client, kmsKeyID: testKMSKeyID}
			opts, err := signer.GetTransactOpts(testChainIDBig)
			require.NoError(t, err)
			assert.Equal(t, from, opts.From)

			signed, err := opts.Signer(tt.giveFrom, pauseTx())
			switch {
			case tt.wantErrIs != nil:
				require.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantErr != "":
				require.ErrorContains(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				sender, err := types.Sender(types.LatestSignerForChainID(testChainIDBig), signed)
				require.NoError(t, err)
				assert.Equal(t, from, sender)
			}
		})
	}
}

func Test_KMSSigner_GetTransactOpts_nilChainID(t *testing.T) {
	t.Parallel()

	signer := &KMSSigner{client: kmsmocks.NewMockClient(t), kmsKeyID: testKMSKeyID}

	_, err := signer.GetTransactOpts(nil)
	require.ErrorContains(t, err, "chainID is required")
}

func Test_kmsToEVMSig(t *testing.T) {
	t.Parallel()

	key := newTestLocalKMSKey(t)
	pub := crypto.FromECDSAPub(&key.priv.PublicKey)
	hash := crypto.Keccak256([]byte("grantRole(bytes32,address)"))

	sig, err := crypto.Sign(hash, key.priv)
	require.NoError(t, err)
	highS := new(big.Int).Sub(secp256k1N, new(big.Int).SetBytes(sig[32:64]))

	der := func(r, s []byte) []byte {
		b, merr := asn1.Marshal(kms.ECDSASig{
			R: asn1.RawValue{Tag: asn1.TagInteger, Bytes: r},
			S: asn1.RawValue{Tag: asn1.TagInteger, Bytes: s},
		})
		require.NoError(t, merr)

		return b
	}

	tests := []struct {
		name    string
		giveSig []byte
		wantErr string
	}{
		{
			name:    "low s",
			giveSig: der(sig[:32], sig[32:64]),
		},
		{
			name:    "high s is normalized",
			giveSig: der(sig[:32], highS.Bytes()),
		},
		{
			name:    "garbage",
			giveSig: []byte("garbage"),
			wantErr: "failed to unmarshal KMS signature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := kmsToEVMSig(tt.giveSig, pub, hash)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 65)

			recovered, err := crypto.Ecrecover(hash, got)
			require.NoError(t, err)
			assert.Equal(t, pub, recovered)
		})
	}
}

func Test_padTo32Bytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		give []byte
		want int
	}{
		{name: "short", give: []byte{0x01, 0x02}, want: 32},
		{name: "leading zeros trimmed", give: append(make([]byte, 40), 0x01), want: 32},
		{name: "already full", give: bytesOf(32, 0xff), want: 32},
		{name: "longer is kept", give: bytesOf(33, 0xff), want: 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := padTo32Bytes(tt.give)
			assert.Len(t, got, tt.want)
			assert.Equal(t, tt.give[len(tt.give)-1], got[len(got)-1])
		})
	}
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}

	return out
}
