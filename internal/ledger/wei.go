package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// ToWei переводит сумму в нативной валюте сети в wei.
// Количество знаков после запятой у нативных валют EVM-сетей равно 18.
func ToWei(amount float64) *big.Int {
	f := new(big.Float).SetFloat64(amount)
	f.Mul(f, big.NewFloat(params.Ether))
	wei, _ := f.Int(nil)
	return wei
}
