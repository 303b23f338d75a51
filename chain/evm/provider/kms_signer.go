package provider

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	kmslib "github.com/aws/aws-sdk-go/service/kms"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/secp256k1"

	"github.com/smartcontractkit/contract-admin/chain/internal/kms"
)

// KMSSigner signs admin transactions and hashes with an AWS KMS secp256k1 key. The public key
// is fetched once and cached.
type KMSSigner struct {
	client   kms.Client
	kmsKeyID string

	mu             sync.Mutex
	ecdsaPublicKey *ecdsa.PublicKey
}

// NewKMSSigner creates a KMSSigner for the key. An empty awsProfile loads credentials from the
// environment.
func NewKMSSigner(keyID, keyRegion string, awsProfile string) (*KMSSigner, error) {
	client, err := kms.NewClient(kms.ClientConfig{
		KeyID:      keyID,
		KeyRegion:  keyRegion,
		AWSProfile: awsProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KMS Client: %w", err)
	}

	return &KMSSigner{
		client:   client,
		kmsKeyID: keyID,
	}, nil
}

// GetECDSAPublicKey returns the public key of the KMS key.
func (s *KMSSigner) GetECDSAPublicKey() (*ecdsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ecdsaPublicKey != nil {
		return s.ecdsaPublicKey, nil
	}

	out, err := s.client.GetPublicKey(&kmslib.GetPublicKeyInput{
		KeyId: aws.String(s.kmsKeyID),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot get public key from KMS for KeyId=%s: %w", s.kmsKeyID, err)
	}

	var spki kms.SPKI
	if _, err = asn1.Unmarshal(out.PublicKey, &spki); err != nil {
		return nil, fmt.Errorf("cannot parse asn1 public key for KeyId=%s: %w", s.kmsKeyID, err)
	}

	pubKey, err := crypto.UnmarshalPubkey(spki.SubjectPublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cannot unmarshal public key bytes: %w", err)
	}
	s.ecdsaPublicKey = pubKey

	return pubKey, nil
}

// GetAddress returns the address of the KMS key.
func (s *KMSSigner) GetAddress() (common.Address, error) {
	pubKey, err := s.GetECDSAPublicKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// GetTransactOpts returns transact options that sign through KMS for the chain.
func (s *KMSSigner) GetTransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if chainID == nil {
		return nil, errors.New("chainID is required")
	}

	addr, err := s.GetAddress()
	if err != nil {
		return nil, err
	}

	return &bind.TransactOpts{
		From:   addr,
		Signer: s.signerFunc(chainID),
	}, nil
}

func (s *KMSSigner) signerFunc(chainID *big.Int) bind.SignerFn {
	signer := types.LatestSignerForChainID(chainID)

	return func(address common.Address, tx *types.Transaction) (*types.Transaction, error) {
		pubKey, err := s.GetECDSAPublicKey()
		if err != nil {
			return nil, err
		}
		if address != crypto.PubkeyToAddress(*pubKey) {
			return nil, bind.ErrNotAuthorized
		}

		sig, err := s.sign(pubKey, signer.Hash(tx).Bytes())
		if err != nil {
			return nil, err
		}

		return tx.WithSignature(signer, sig)
	}
}

func (s *KMSSigner) sign(pubKey *ecdsa.PublicKey, hash []byte) ([]byte, error) {
	var (
		mType = kmslib.MessageTypeDigest
		algo  = kmslib.SigningAlgorithmSpecEcdsaSha256
	)

	out, err := s.client.Sign(&kmslib.SignInput{
		KeyId:            aws.String(s.kmsKeyID),
		SigningAlgorithm: &algo,
		MessageType:      &mType,
		Message:          hash,
	})
	if err != nil {
		return nil, fmt.Errorf("call to kms.Sign() failed: %w", err)
	}

	pubKeyBytes := secp256k1.S256().Marshal(pubKey.X, pubKey.Y)
	evmSig, err := kmsToEVMSig(out.Signature, pubKeyBytes, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to convert KMS signature to Ethereum signature: %w", err)
	}

	return evmSig, nil
}

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Div(secp256k1N, big.NewInt(2))
)

// kmsToEVMSig converts a DER encoded KMS signature into the 65 byte form used by the EVM,
// normalizing S to the lower half of the curve order (EIP-2).
func kmsToEVMSig(kmsSig, ecdsaPubKeyBytes, hash []byte) ([]byte, error) {
	var ecdsaSig kms.ECDSASig
	if _, err := asn1.Unmarshal(kmsSig, &ecdsaSig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal KMS signature: %w", err)
	}

	sBytes := ecdsaSig.S.Bytes
	if sBigInt := new(big.Int).SetBytes(sBytes); sBigInt.Cmp(secp256k1HalfN) > 0 {
		sBytes = new(big.Int).Sub(secp256k1N, sBigInt).Bytes()
	}

	return recoverEVMSignature(ecdsaPubKeyBytes, hash, ecdsaSig.R.Bytes, sBytes)
}

// recoverEVMSignature finds the recovery id (0 or 1) under which the signature recovers to the
// expected public key.
func recoverEVMSignature(expectedPublicKey, txHash, r, s []byte) ([]byte, error) {
	rsSig := append(padTo32Bytes(r), padTo32Bytes(s)...)

	for _, v := range []byte{0, 1} {
		evmSig := append(bytes.Clone(rsSig), v)
		recovered, err := crypto.Ecrecover(txHash, evmSig)
		if err != nil {
			return nil, fmt.Errorf("failed to recover signature with v=%d: %w", v, err)
		}
		if bytes.Equal(recovered, expectedPublicKey) {
			return evmSig, nil
		}
	}

	return nil, errors.New("cannot reconstruct public key from sig")
}

// padTo32Bytes trims leading zeros and left pads the result to 32 bytes.
func padTo32Bytes(buffer []byte) []byte {
	buffer = bytes.TrimLeft(buffer, "\x00")
	if len(buffer) >= 32 {
		return buffer
	}
	out := make([]byte, 32)
	copy(out[32-len(buffer):], buffer)

	return out
}
