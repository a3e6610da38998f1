package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/w3bucket/bucket-provider/internal/db"
)

// Currency describes one accepted payment currency. Address is empty or the
// zero address for the chain's native coin. UnitPrice is a human decimal
// ("0.8"), scaled by Decimals into integer base units at load time.
type Currency struct {
	Address   string
	Symbol    string
	Decimals  uint8
	UnitPrice string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type Config struct {
	ListenAddr            string
	AdminAddress          string
	VaultAddress          string
	CapacityUnitMegabytes uint64
	Currencies            []Currency
	Kafka                 *Kafka
}

func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	_, err = os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = os.MkdirAll(dir, os.ModePerm)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check directory: %w", err)
		}
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		cfg := &Config{
			ListenAddr:            "127.0.0.1:18655",
			CapacityUnitMegabytes: 1024,
			Currencies: []Currency{
				{
					Symbol:    "NATIVE",
					Decimals:  18,
					UnitPrice: "0.8",
				},
			},
		}

		if err = SaveConfig(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
		return cfg, nil
	} else if err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		var cfg Config
		if err = json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		return &cfg, nil
	}

	return nil, err
}

func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0766)
}

// CurrencyAddress resolves the configured address, the native sentinel when
// empty.
func (c Currency) CurrencyAddress() (common.Address, error) {
	if c.Address == "" {
		return db.NativeCurrency, nil
	}
	if !common.IsHexAddress(c.Address) {
		return common.Address{}, fmt.Errorf("invalid currency address %q", c.Address)
	}
	return common.HexToAddress(c.Address), nil
}

// BaseUnitPrice converts the human decimal price into integer base units.
func (c Currency) BaseUnitPrice() (*big.Int, error) {
	d, err := decimal.NewFromString(c.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid unit price %q for %s: %w", c.UnitPrice, c.Symbol, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("negative unit price %q for %s", c.UnitPrice, c.Symbol)
	}

	scaled := d.Shift(int32(c.Decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("unit price %q for %s has more than %d decimals", c.UnitPrice, c.Symbol, c.Decimals)
	}
	return scaled.BigInt(), nil
}

// UnitPrices resolves every configured currency into a registry entry.
func (c *Config) UnitPrices() ([]db.UnitPrice, error) {
	var list []db.UnitPrice
	for _, cur := range c.Currencies {
		addr, err := cur.CurrencyAddress()
		if err != nil {
			return nil, err
		}
		price, err := cur.BaseUnitPrice()
		if err != nil {
			return nil, err
		}
		list = append(list, db.UnitPrice{Currency: addr, Price: price})
	}
	return list, nil
}
