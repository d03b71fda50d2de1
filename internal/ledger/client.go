// Package ledger инкапсулирует расчеты в блокчейн-сети: отправку нативных
// токенов с сервисного кошелька и проверку статуса транзакций.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/magabrotheeeer/passkey-paywall/internal/config"
)

// Статусы транзакции в сети.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// TxResult результат отправки или проверки транзакции.
type TxResult struct {
	TxHash      string
	ChainID     int64
	Status      string
	BlockNumber uint64
}

// Client клиент блокчейн-сети с сервисным кошельком.
type Client struct {
	eth         *ethclient.Client
	key         *ecdsa.PrivateKey
	address     common.Address
	payee       common.Address
	chainID     *big.Int
	explorerURL string
	log         *slog.Logger
}

// New подключается к RPC-узлу сети и загружает сервисный кошелек.
func New(cfg config.Chain, log *slog.Logger) (*Client, error) {
	const op = "ledger.New"

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid private key: %w", op, err)
	}

	if !common.IsHexAddress(cfg.PayeeAddress) {
		return nil, fmt.Errorf("%s: invalid payee address: %s", op, cfg.PayeeAddress)
	}

	return &Client{
		eth:         eth,
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		payee:       common.HexToAddress(cfg.PayeeAddress),
		chainID:     big.NewInt(cfg.ChainID),
		explorerURL: cfg.ExplorerURL,
		log:         log,
	}, nil
}

// Address адрес сервисного кошелька.
func (c *Client) Address() string {
	return c.address.Hex()
}

// ExplorerURL ссылка на транзакцию в обозревателе сети.
func (c *Client) ExplorerURL(txHash string) string {
	return c.explorerURL + "/tx/" + txHash
}

// Balance баланс сервисного кошелька в нативной валюте.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	const op = "ledger.Client.Balance"

	wei, err := c.eth.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(params.Ether))
	balance, _ := f.Float64()
	return balance, nil
}

// SendValue отправляет сумму в нативной валюте на адрес получателя
// и дожидается включения транзакции в блок.
func (c *Client) SendValue(ctx context.Context, amount float64) (*TxResult, error) {
	const op = "ledger.Client.SendValue"

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx := types.NewTransaction(nonce, c.payee, ToWei(amount), params.TxGas, gasPrice, nil)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info("transaction sent",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Float64("amount", amount))

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &TxResult{
		TxHash:      signed.Hash().Hex(),
		ChainID:     c.chainID.Int64(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status:      TxStatusFailed,
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Status = TxStatusConfirmed
	}
	return result, nil
}

// GetStatus возвращает статус транзакции по хэшу. Транзакция, еще не
// включенная в блок, считается pending.
func (c *Client) GetStatus(ctx context.Context, txHash string) (*TxResult, error) {
	const op = "ledger.Client.GetStatus"

	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return &TxResult{
			TxHash:  txHash,
			ChainID: c.chainID.Int64(),
			Status:  TxStatusPending,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &TxResult{
		TxHash:      txHash,
		ChainID:     c.chainID.Int64(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status:      TxStatusFailed,
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Status = TxStatusConfirmed
	}
	return result, nil
}

// Close закрывает подключение к RPC-узлу.
func (c *Client) Close() {
	c.eth.Close()
}
