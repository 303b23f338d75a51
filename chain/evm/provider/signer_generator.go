package provider

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignerGenerator produces the transact options the console signs admin writes with.
type SignerGenerator interface {
	Generate(chainID *big.Int) (*bind.TransactOpts, error)
}

var (
	_ SignerGenerator = (*transactorFromRaw)(nil)
	_ SignerGenerator = (*transactorRandom)(nil)
	_ SignerGenerator = (*transactorFromKMSSigner)(nil)
)

// TransactorFromRaw returns a generator for a hex encoded private key. The 0x prefix is
// optional.
func TransactorFromRaw(privKey string) SignerGenerator {
	return &transactorFromRaw{privKey: strings.TrimPrefix(strings.TrimSpace(privKey), "0x")}
}

type transactorFromRaw struct {
	privKey string
}

// Generate parses the private key and returns the bind transactor options.
func (g *transactorFromRaw) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	privKey, err := crypto.HexToECDSA(g.privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key to ECDSA: %w", err)
	}

	return bind.NewKeyedTransactorWithChainID(privKey, chainID)
}

// TransactorRandom returns a generator for a key created on first use. Every later call reuses
// that key.
func TransactorRandom() SignerGenerator {
	return &transactorRandom{}
}

type transactorRandom struct {
	mu      sync.Mutex
	privKey *ecdsa.PrivateKey
}

// Generate returns the bind transactor options of the random key.
func (g *transactorRandom) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.privKey == nil {
		privKey, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate random private key: %w", err)
		}
		g.privKey = privKey
	}

	return bind.NewKeyedTransactorWithChainID(g.privKey, chainID)
}

// TransactorFromKMS returns a generator backed by a KMS key. An empty awsProfileName loads AWS
// credentials from the environment.
func TransactorFromKMS(keyID, keyRegion, awsProfileName string) (SignerGenerator, error) {
	signer, err := NewKMSSigner(keyID, keyRegion, awsProfileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS signer: %w", err)
	}

	return TransactorFromKMSSigner(signer), nil
}

// TransactorFromKMSSigner returns a generator for an existing KMSSigner.
func TransactorFromKMSSigner(signer *KMSSigner) SignerGenerator {
	return &transactorFromKMSSigner{signer: signer}
}

type transactorFromKMSSigner struct {
	signer *KMSSigner
}

func (g *transactorFromKMSSigner) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	transactor, err := g.signer.GetTransactOpts(chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transact opts from KMS signer: %w", err)
	}

	return transactor, nil
}
