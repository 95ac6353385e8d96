package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
)

// Account is one managed wallet: its signing key, derived address and the
// optional proxy its network traffic is pinned to.
type Account struct {
	Index    int
	Address  common.Address
	ProxyURL string

	key *ecdsa.PrivateKey
}

// APIAddress is the address form the campaign API expects: lowercase hex.
func (a *Account) APIAddress() string {
	return strings.ToLower(a.Address.Hex())
}

// SignTx signs tx with the account key for the given chain.
func (a *Account) SignTx(tx *types.Transaction, chainID int64) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(bigFromInt64(chainID))
	signed, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "sign transaction", err)
	}
	return signed, nil
}

// Load reads private keys from the CYCLER_PRIVATE_KEYS environment variable
// (comma separated) or, when unset, from the accounts file (one hex key per
// line, # comments allowed). Proxies are paired by position: account i gets
// proxy i mod len(proxies).
func Load(accountsPath, proxiesPath string) ([]*Account, error) {
	keys, err := loadKeys(accountsPath)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "no accounts configured: set CYCLER_PRIVATE_KEYS or populate the accounts file")
	}

	proxies, err := loadProxies(proxiesPath)
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0, len(keys))
	for i, hexKey := range keys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("parse private key %d", i+1), err)
		}
		acct := &Account{
			Index:   i,
			Address: crypto.PubkeyToAddress(key.PublicKey),
			key:     key,
		}
		if len(proxies) > 0 {
			acct.ProxyURL = proxies[i%len(proxies)]
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func loadKeys(path string) ([]string, error) {
	if env := os.Getenv("CYCLER_PRIVATE_KEYS"); strings.TrimSpace(env) != "" {
		return splitNonEmpty(env, ","), nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, clierr.Wrap(clierr.CodeUsage, "read accounts file", err)
	}
	return parseLines(string(buf)), nil
}

func loadProxies(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, clierr.Wrap(clierr.CodeUsage, "read proxies file", err)
	}
	return parseLines(string(buf)), nil
}

func parseLines(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
