package rental

import (
	"fmt"
	"math/big"
	"strings"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// EtherToWei converts a decimal ETH string ("0.0001") to wei. Prices are
// stored as decimal strings and compared in wei; no floats touch money.
func EtherToWei(ether string) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(strings.TrimSpace(ether))
	if !ok {
		return nil, fmt.Errorf("malformed ether amount %q", ether)
	}
	rat.Mul(rat, new(big.Rat).SetInt(weiPerEther))
	if !rat.IsInt() {
		return nil, fmt.Errorf("ether amount %q is below wei precision", ether)
	}
	return new(big.Int).Set(rat.Num()), nil
}

// WeiToEther renders a wei amount as a decimal ETH string with up to ten
// fractional digits, matching the catalog price column's scale.
func WeiToEther(wei *big.Int) string {
	rat := new(big.Rat).SetFrac(wei, weiPerEther)
	out := rat.FloatString(10)
	out = strings.TrimRight(out, "0")
	out = strings.TrimRight(out, ".")
	if out == "" || out == "-" {
		return "0"
	}
	return out
}
